package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims is the minimal view of validated token claims.
type AuthClaims interface {
	Subject() string
	UserID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// SessionClaims is the concrete claim set carried by the session cookie. The
// provider token set travels inside the signed cookie; the registered expiry
// bounds the cookie itself while AccessExpiry tracks the short-lived access
// token independently, so an expired access token can still be refreshed from
// a valid cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID          string           `json:"uid,omitempty"`
	AccessToken  string           `json:"act,omitempty"`
	RefreshToken string           `json:"rft,omitempty"`
	AccessExpiry *jwt.NumericDate `json:"axp,omitempty"`
}

var _ AuthClaims = (*SessionClaims)(nil)

// Subject returns the subject claim
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user identifier, falling back to the subject.
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Expires returns the cookie expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issue time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// AccessTokenExpiry returns the access token expiry, zero when absent.
func (c *SessionClaims) AccessTokenExpiry() time.Time {
	if c.AccessExpiry != nil {
		return c.AccessExpiry.Time
	}
	return time.Time{}
}
