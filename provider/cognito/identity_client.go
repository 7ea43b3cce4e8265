package cognito

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/stackmill/go-cognito-auth"
)

const (
	paramUsername     = "USERNAME"
	paramPassword     = "PASSWORD"
	paramRefreshToken = "REFRESH_TOKEN"
	paramSecretHash   = "SECRET_HASH"

	attrEmail         = "email"
	attrEmailVerified = "email_verified"
)

// API is the slice of the Cognito service client this package uses. The
// concrete *cognitoidentityprovider.Client satisfies it.
type API interface {
	SignUp(ctx context.Context, params *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	ConfirmSignUp(ctx context.Context, params *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, params *cognitoidentityprovider.ResendConfirmationCodeInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ResendConfirmationCodeOutput, error)
	AdminInitiateAuth(ctx context.Context, params *cognitoidentityprovider.AdminInitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminInitiateAuthOutput, error)
	AdminGetUser(ctx context.Context, params *cognitoidentityprovider.AdminGetUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminGetUserOutput, error)
	AdminUserGlobalSignOut(ctx context.Context, params *cognitoidentityprovider.AdminUserGlobalSignOutInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.AdminUserGlobalSignOutOutput, error)
}

// Client implements auth.IdentityClient on top of a Cognito user pool. It is
// stateless; all account state lives in the pool.
type Client struct {
	config Config
	api    API
	logger auth.Logger
}

var _ auth.IdentityClient = (*Client)(nil)

type Option func(*Client)

// WithAPI overrides the Cognito service client, mainly for tests.
func WithAPI(api API) Option {
	return func(c *Client) {
		c.api = api
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger auth.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Cognito-backed identity client. Unless an API is injected
// through WithAPI, the default AWS credential chain is used.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid cognito configuration")
	}

	client := &Client{
		config: cfg,
		logger: noopLogger{},
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.api == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to load AWS configuration")
		}
		client.api = cognitoidentityprovider.NewFromConfig(awsCfg)
	}

	return client, nil
}

// Register creates a new account in the pool. When the username is already
// taken the returned error carries the remote account status so callers can
// route unconfirmed accounts back to the confirmation step.
func (c *Client) Register(ctx context.Context, username, password string) error {
	input := &cognitoidentityprovider.SignUpInput{
		ClientId: aws.String(c.config.ClientID),
		Username: aws.String(username),
		Password: aws.String(password),
		UserAttributes: []types.AttributeType{
			{Name: aws.String(attrEmail), Value: aws.String(username)},
		},
	}
	if hash := c.secretHash(username); hash != "" {
		input.SecretHash = aws.String(hash)
	}

	_, err := c.api.SignUp(ctx, input)
	if err == nil {
		return nil
	}

	var exists *types.UsernameExistsException
	if goerrors.As(err, &exists) {
		return c.accountExistsError(ctx, username, err)
	}

	return c.providerError(err, "sign up failed")
}

func (c *Client) accountExistsError(ctx context.Context, username string, cause error) error {
	status := "UNKNOWN"
	if profile, err := c.GetProfile(ctx, username); err == nil {
		status = profile.Status
	}

	e := auth.ErrAccountExists.Clone()
	e.Source = cause
	e.Message = fmt.Sprintf("user exists and is %s", status)
	e.WithMetadata(map[string]any{
		auth.MetadataStatusKey: status,
	})
	return e
}

// ResendConfirmation requests a new confirmation code for a pending account.
func (c *Client) ResendConfirmation(ctx context.Context, username string) error {
	input := &cognitoidentityprovider.ResendConfirmationCodeInput{
		ClientId: aws.String(c.config.ClientID),
		Username: aws.String(username),
	}
	if hash := c.secretHash(username); hash != "" {
		input.SecretHash = aws.String(hash)
	}

	_, err := c.api.ResendConfirmationCode(ctx, input)
	if err == nil {
		return nil
	}

	var notFound *types.UserNotFoundException
	if goerrors.As(err, &notFound) {
		return c.cloneWithSource(auth.ErrAccountNotFound, err)
	}

	return c.providerError(err, "resend confirmation failed")
}

// Confirm submits the emailed confirmation code. Confirming an already
// confirmed account is treated as success.
func (c *Client) Confirm(ctx context.Context, username, code string) error {
	input := &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(c.config.ClientID),
		Username:         aws.String(username),
		ConfirmationCode: aws.String(code),
	}
	if hash := c.secretHash(username); hash != "" {
		input.SecretHash = aws.String(hash)
	}

	_, err := c.api.ConfirmSignUp(ctx, input)
	if err == nil {
		return nil
	}

	var mismatch *types.CodeMismatchException
	var expired *types.ExpiredCodeException
	if goerrors.As(err, &mismatch) || goerrors.As(err, &expired) {
		return c.cloneWithSource(auth.ErrInvalidConfirmationCode, err)
	}

	var notFound *types.UserNotFoundException
	if goerrors.As(err, &notFound) {
		return c.cloneWithSource(auth.ErrAccountNotFound, err)
	}

	// Cognito rejects a second confirmation of a CONFIRMED account with
	// NotAuthorized; from the caller's point of view that account is done.
	var notAuthorized *types.NotAuthorizedException
	if goerrors.As(err, &notAuthorized) {
		if profile, perr := c.GetProfile(ctx, username); perr == nil && profile.Confirmed {
			return nil
		}
		return c.cloneWithSource(auth.ErrInvalidConfirmationCode, err)
	}

	return c.providerError(err, "confirmation failed")
}

// SignIn exchanges credentials for a token set. Bad credentials and unknown
// accounts collapse into the same opaque error; the distinction is only
// logged.
func (c *Client) SignIn(ctx context.Context, username, password string) (auth.TokenSet, error) {
	params := map[string]string{
		paramUsername: username,
		paramPassword: password,
	}
	if hash := c.secretHash(username); hash != "" {
		params[paramSecretHash] = hash
	}

	out, err := c.api.AdminInitiateAuth(ctx, &cognitoidentityprovider.AdminInitiateAuthInput{
		UserPoolId:     aws.String(c.config.UserPoolID),
		ClientId:       aws.String(c.config.ClientID),
		AuthFlow:       types.AuthFlowTypeAdminUserPasswordAuth,
		AuthParameters: params,
	})
	if err != nil {
		var notAuthorized *types.NotAuthorizedException
		var notFound *types.UserNotFoundException
		var notConfirmed *types.UserNotConfirmedException
		if goerrors.As(err, &notAuthorized) || goerrors.As(err, &notFound) || goerrors.As(err, &notConfirmed) {
			c.logger.Debug("cognito: sign in rejected", "username", username, "error", err)
			return auth.TokenSet{}, c.cloneWithSource(auth.ErrInvalidCredentials, err)
		}
		return auth.TokenSet{}, c.providerError(err, "sign in failed")
	}

	return c.tokenSet(out.AuthenticationResult)
}

// Refresh exchanges a refresh token for a new access token. Cognito may omit
// the refresh token from the result when the grant is still valid; callers
// keep using the one they have.
func (c *Client) Refresh(ctx context.Context, username, refreshToken string) (auth.TokenSet, error) {
	params := map[string]string{
		paramRefreshToken: refreshToken,
	}
	if hash := c.secretHash(username); hash != "" {
		params[paramSecretHash] = hash
	}

	out, err := c.api.AdminInitiateAuth(ctx, &cognitoidentityprovider.AdminInitiateAuthInput{
		UserPoolId:     aws.String(c.config.UserPoolID),
		ClientId:       aws.String(c.config.ClientID),
		AuthFlow:       types.AuthFlowTypeRefreshTokenAuth,
		AuthParameters: params,
	})
	if err != nil {
		var notAuthorized *types.NotAuthorizedException
		var notFound *types.UserNotFoundException
		if goerrors.As(err, &notAuthorized) || goerrors.As(err, &notFound) {
			return auth.TokenSet{}, c.cloneWithSource(auth.ErrRefreshExpired, err)
		}
		return auth.TokenSet{}, c.providerError(err, "token refresh failed")
	}

	return c.tokenSet(out.AuthenticationResult)
}

// SignOut revokes every token issued to the account.
func (c *Client) SignOut(ctx context.Context, username string) error {
	_, err := c.api.AdminUserGlobalSignOut(ctx, &cognitoidentityprovider.AdminUserGlobalSignOutInput{
		UserPoolId: aws.String(c.config.UserPoolID),
		Username:   aws.String(username),
	})
	if err == nil {
		return nil
	}

	var notFound *types.UserNotFoundException
	if goerrors.As(err, &notFound) {
		return c.cloneWithSource(auth.ErrAccountNotFound, err)
	}

	return c.providerError(err, "global sign out failed")
}

// GetProfile fetches the account attributes and confirmation status.
func (c *Client) GetProfile(ctx context.Context, username string) (auth.Profile, error) {
	out, err := c.api.AdminGetUser(ctx, &cognitoidentityprovider.AdminGetUserInput{
		UserPoolId: aws.String(c.config.UserPoolID),
		Username:   aws.String(username),
	})
	if err != nil {
		var notFound *types.UserNotFoundException
		if goerrors.As(err, &notFound) {
			return auth.Profile{}, c.cloneWithSource(auth.ErrAccountNotFound, err)
		}
		return auth.Profile{}, c.providerError(err, "profile lookup failed")
	}

	profile := auth.Profile{
		Status:    string(out.UserStatus),
		Confirmed: out.UserStatus == types.UserStatusTypeConfirmed,
	}
	if out.Username != nil {
		profile.Sub = aws.ToString(out.Username)
	}

	for _, attr := range out.UserAttributes {
		switch aws.ToString(attr.Name) {
		case "sub":
			profile.Sub = aws.ToString(attr.Value)
		case attrEmail:
			profile.Email = aws.ToString(attr.Value)
		case attrEmailVerified:
			profile.EmailVerified = aws.ToString(attr.Value) == "true"
		}
	}

	return profile, nil
}

func (c *Client) tokenSet(result *types.AuthenticationResultType) (auth.TokenSet, error) {
	if result == nil || result.AccessToken == nil {
		e := auth.ErrProviderUnavailable.Clone()
		e.Message = "authentication returned no token set"
		return auth.TokenSet{}, e
	}

	tokens := auth.TokenSet{
		AccessToken: aws.ToString(result.AccessToken),
		ExpiresIn:   result.ExpiresIn,
	}
	if result.RefreshToken != nil {
		tokens.RefreshToken = aws.ToString(result.RefreshToken)
	}

	return tokens, nil
}

// secretHash derives the per-user secret hash the pool expects when the app
// client has a secret: base64(HMAC-SHA256(secret, username + clientID)).
func (c *Client) secretHash(username string) string {
	if c.config.ClientSecret == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(c.config.ClientSecret))
	mac.Write([]byte(username + c.config.ClientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) cloneWithSource(base *goerrors.Error, cause error) *goerrors.Error {
	e := base.Clone()
	e.Source = cause
	return e
}

func (c *Client) providerError(err error, msg string) error {
	var apiErr smithy.APIError
	if goerrors.As(err, &apiErr) {
		c.logger.Warn("cognito: "+msg, "code", apiErr.ErrorCode(), "message", apiErr.ErrorMessage())
	} else {
		c.logger.Warn("cognito: "+msg, "error", err)
	}

	e := auth.ErrProviderUnavailable.Clone()
	e.Source = err
	e.Message = msg
	return e
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
