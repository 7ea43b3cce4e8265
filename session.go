package auth

import (
	"fmt"
	"time"
)

var _ Session = &SessionObject{}

// SessionObject is the session record reconstructed from the cookie token:
// the caller identity plus the provider token set and its expiry.
type SessionObject struct {
	UserID         string     `json:"user_id,omitempty"`
	AccessToken    string     `json:"access_token,omitempty"`
	RefreshToken   string     `json:"refresh_token,omitempty"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	AccessExpiry   *time.Time `json:"access_expiry,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetAccessToken() string {
	return s.AccessToken
}

func (s *SessionObject) GetRefreshToken() string {
	return s.RefreshToken
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetExpiration() *time.Time {
	return s.ExpirationDate
}

func (s *SessionObject) GetAccessExpiry() *time.Time {
	return s.AccessExpiry
}

// Expired reports whether the access token must not be used for profile
// fetches without first attempting a refresh.
func (s *SessionObject) Expired(now time.Time) bool {
	if s.AccessExpiry == nil {
		return true
	}
	return !now.Before(*s.AccessExpiry)
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	accessExpiry := "<nil>"
	if s.AccessExpiry != nil {
		accessExpiry = s.AccessExpiry.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s iat=%s axp=%s",
		s.UserID,
		issuedAt,
		accessExpiry,
	)
}

// sessionFromAuthClaims creates a SessionObject from validated claims.
func sessionFromAuthClaims(claims AuthClaims) (*SessionObject, error) {
	if claims == nil {
		return nil, ErrUnableToDecodeSession
	}

	issuedAt := claims.IssuedAt()
	expiresAt := claims.Expires()

	session := &SessionObject{
		UserID:         claims.UserID(),
		IssuedAt:       &issuedAt,
		ExpirationDate: &expiresAt,
	}

	if sessionClaims, ok := claims.(*SessionClaims); ok {
		session.AccessToken = sessionClaims.AccessToken
		session.RefreshToken = sessionClaims.RefreshToken
		if sessionClaims.AccessExpiry != nil {
			accessExpiry := sessionClaims.AccessExpiry.Time
			session.AccessExpiry = &accessExpiry
		}
	}

	return session, nil
}
