package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

// Logger takes a message plus alternating key/value pairs, slog style.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TokenSet is the credential bundle the identity provider returns on
// sign-in and refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token TTL in seconds, as reported by the provider.
	ExpiresIn int32
}

// Profile holds the provider-side attributes of an account.
type Profile struct {
	Sub           string
	Email         string
	EmailVerified bool
	Confirmed     bool
	Status        string
}

// IdentityClient is a stateless adapter over the remote identity provider.
// Implementations must never let a provider fault escape unhandled; every
// failure is normalized into one of the errors in errors.go.
type IdentityClient interface {
	Register(ctx context.Context, username, password string) error
	ResendConfirmation(ctx context.Context, username string) error
	Confirm(ctx context.Context, username, code string) error
	SignIn(ctx context.Context, username, password string) (TokenSet, error)
	Refresh(ctx context.Context, username, refreshToken string) (TokenSet, error)
	SignOut(ctx context.Context, username string) error
	GetProfile(ctx context.Context, username string) (Profile, error)
}

// Session holds the per-request-session state: who the caller is and the
// provider tokens backing the authentication.
type Session interface {
	GetUserID() string
	GetAccessToken() string
	GetRefreshToken() string
	GetIssuedAt() *time.Time
	GetExpiration() *time.Time
	GetAccessExpiry() *time.Time
	Expired(now time.Time) bool
}

// Authenticator drives the session lifecycle around the IdentityClient.
type Authenticator interface {
	Register(ctx context.Context, identifier, password string) error
	ResendConfirmation(ctx context.Context, identifier string) error
	Confirm(ctx context.Context, identifier, code string) error
	SignIn(ctx context.Context, identifier, password string) (string, error)
	SignInExtended(ctx context.Context, identifier, password string) (string, error)
	SessionFromToken(token string) (Session, error)
	RefreshSession(ctx context.Context, session Session) (Session, string, error)
	PrincipalFromSession(ctx context.Context, session Session) (Principal, string, error)
	SignOut(ctx context.Context, session Session) error
}

type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
	GetExtendedSession() bool
}

type Middleware interface {
	ProtectedRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

type HTTPAuthenticator interface {
	Middleware
	Login(c router.Context, payload LoginPayload) error
	Logout(c router.Context)
	SessionFromRequest(c router.Context) (Session, error)
	SetRedirect(c router.Context)
	GetRedirect(c router.Context, def ...string) string
	GetRedirectOrDefault(c router.Context) string
	MakeClientRouteAuthErrorHandler(optionalAuth bool) func(c router.Context, err error) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetContextKey() string
	GetTokenExpiration() int
	GetExtendedTokenDuration() int
	GetIssuer() string
	GetAudience() []string
	GetRejectedRouteKey() string
	GetRejectedRouteDefault() string
}

// TokenService signs and validates the session cookie tokens.
type TokenService interface {
	TokenValidator
	Mint(identifier string, tokens TokenSet, extended bool) (string, error)
	SignClaims(claims *SessionClaims) (string, error)
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] AUTH " + msg + formatLogAttrs(args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] AUTH " + msg + formatLogAttrs(args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] AUTH " + msg + formatLogAttrs(args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] AUTH " + msg + formatLogAttrs(args))
}

func formatLogAttrs(args []any) string {
	if len(args) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return b.String()
}
