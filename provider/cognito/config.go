package cognito

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds the Cognito user pool settings.
type Config struct {
	// Region is the AWS region hosting the user pool (e.g. "us-east-1").
	Region string

	// UserPoolID identifies the user pool (e.g. "us-east-1_Abc123").
	UserPoolID string

	// ClientID is the app client ID registered with the pool.
	ClientID string

	// ClientSecret is the app client secret. Optional; when set, every call
	// carries the derived secret hash.
	ClientSecret string

	// JWKSRefreshInterval is how often the remote key set is refreshed by the
	// token validator. Default: 1 hour.
	JWKSRefreshInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(region, userPoolID, clientID string) Config {
	return Config{
		Region:              region,
		UserPoolID:          userPoolID,
		ClientID:            clientID,
		JWKSRefreshInterval: time.Hour,
	}
}

// Validate checks that the required pool coordinates are present.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Region, validation.Required),
		validation.Field(&c.UserPoolID, validation.Required),
		validation.Field(&c.ClientID, validation.Required),
	)
}

// Issuer returns the token issuer URL for the pool.
func (c Config) Issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// JWKSURL returns the pool's JSON Web Key Set endpoint.
func (c Config) JWKSURL() string {
	return c.Issuer() + "/.well-known/jwks.json"
}
