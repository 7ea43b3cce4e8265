package cognito

import (
	"encoding/json"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/stackmill/go-cognito-auth"
)

// AccessClaims is the claim set of a Cognito access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	TokenUse string `json:"token_use,omitempty"`
}

var _ auth.AuthClaims = (*AccessClaims)(nil)

// Subject returns the subject claim.
func (c *AccessClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the pool username, falling back to the subject.
func (c *AccessClaims) UserID() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Subject()
}

// Expires returns the token expiration time.
func (c *AccessClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issue time.
func (c *AccessClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// TokenValidator validates Cognito-issued access tokens against the pool's
// published key set.
type TokenValidator struct {
	config Config
	jwks   *keyfunc.JWKS
	logger auth.Logger
}

var _ auth.TokenValidator = (*TokenValidator)(nil)

type ValidatorOption func(*TokenValidator) error

// WithStaticJWKS installs a fixed key set instead of fetching the remote one.
// Useful for tests and air-gapped validation.
func WithStaticJWKS(raw json.RawMessage) ValidatorOption {
	return func(v *TokenValidator) error {
		jwks, err := keyfunc.NewJSON(raw)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid JWKS document")
		}
		v.jwks = jwks
		return nil
	}
}

// WithValidatorLogger overrides the default logger.
func WithValidatorLogger(logger auth.Logger) ValidatorOption {
	return func(v *TokenValidator) error {
		if logger != nil {
			v.logger = logger
		}
		return nil
	}
}

// NewTokenValidator creates a validator for the pool's access tokens. Unless
// a static key set is provided, the pool's JWKS endpoint is fetched and kept
// refreshed in the background.
func NewTokenValidator(cfg Config, opts ...ValidatorOption) (*TokenValidator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid cognito configuration")
	}

	v := &TokenValidator{
		config: cfg,
		logger: noopLogger{},
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	if v.jwks == nil {
		refresh := cfg.JWKSRefreshInterval
		if refresh <= 0 {
			refresh = time.Hour
		}

		jwks, err := keyfunc.Get(cfg.JWKSURL(), keyfunc.Options{
			RefreshInterval:   refresh,
			RefreshRateLimit:  5 * time.Minute,
			RefreshTimeout:    10 * time.Second,
			RefreshUnknownKID: true,
			RefreshErrorHandler: func(err error) {
				v.logger.Warn("cognito: JWKS refresh failed", "error", err)
			},
		})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "unable to fetch JWKS")
		}
		v.jwks = jwks
	}

	return v, nil
}

// Validate parses and verifies an access token: signature against the key
// set, issuer, expiry, plus the Cognito-specific client_id and token_use
// claims that replace the audience check for access tokens.
func (v *TokenValidator) Validate(tokenString string) (auth.AuthClaims, error) {
	claims := &AccessClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(v.config.Issuer()),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, v.cloneWithSource(auth.ErrTokenExpired, err)
		}
		return nil, v.cloneWithSource(auth.ErrTokenMalformed, err)
	}

	if claims.TokenUse != "access" {
		e := auth.ErrTokenMalformed.Clone()
		e.Message = "token is not an access token"
		return nil, e
	}

	if claims.ClientID != v.config.ClientID {
		e := auth.ErrTokenMalformed.Clone()
		e.Message = "token was issued to a different client"
		return nil, e
	}

	return claims, nil
}

// Close stops the background JWKS refresh.
func (v *TokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func (v *TokenValidator) cloneWithSource(base *goerrors.Error, cause error) error {
	e := base.Clone()
	e.Source = cause
	return e
}
