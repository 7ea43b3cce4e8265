package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes surfaced alongside rich errors so callers can branch without
// string matching.
const (
	TextCodeAccountExists    = "ACCOUNT_EXISTS"
	TextCodeAccountNotFound  = "ACCOUNT_NOT_FOUND"
	TextCodeInvalidCreds     = "INVALID_CREDENTIALS"
	TextCodeInvalidCode      = "INVALID_CONFIRMATION_CODE"
	TextCodeRefreshExpired   = "REFRESH_TOKEN_EXPIRED"
	TextCodeProviderFailure  = "PROVIDER_UNAVAILABLE"
	TextCodeSessionNotFound  = "SESSION_NOT_FOUND"
	TextCodeSessionMalformed = "SESSION_MALFORMED"
	TextCodeSessionExpired   = "SESSION_EXPIRED"
	TextCodeUnauthenticated  = "UNAUTHENTICATED"
)

// MetadataStatusKey is the metadata key carrying the provider-side account
// status on ErrAccountExists.
const MetadataStatusKey = "status"

// ErrAccountExists is returned when registering a username the provider
// already knows. The clone carries the existing account status in metadata so
// callers can route unconfirmed accounts to the confirmation flow.
var ErrAccountExists = errors.New("account already exists", errors.CategoryConflict).
	WithTextCode(TextCodeAccountExists).
	WithCode(errors.CodeConflict)

// ErrAccountNotFound is returned for operations against unknown usernames.
var ErrAccountNotFound = errors.New("account not found", errors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidCredentials is the opaque sign-in failure. It deliberately does
// not distinguish a wrong password from an unknown user.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidConfirmationCode is returned on confirmation code mismatch or expiry.
var ErrInvalidConfirmationCode = errors.New("invalid or expired confirmation code", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidCode).
	WithCode(errors.CodeBadRequest)

// ErrRefreshExpired is returned when the refresh token is no longer accepted
// by the provider; callers must force re-authentication.
var ErrRefreshExpired = errors.New("refresh token is invalid or expired", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshExpired).
	WithCode(errors.CodeUnauthorized)

// ErrProviderUnavailable is the catch-all for transport and service faults.
var ErrProviderUnavailable = errors.New("identity provider unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeProviderFailure).
	WithCode(errors.CodeInternal)

// ErrUnauthenticated is what principal reconstruction returns when the
// session cannot be revived; the caller is treated as anonymous.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToFindSession is the error when the request has no session cookie.
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession is returned when the session cookie cannot be decoded.
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithTextCode(TextCodeSessionMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired flags an expired session cookie token.
var ErrTokenExpired = errors.New("session token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed flags a session cookie token that fails parsing or
// signature checks.
var ErrTokenMalformed = errors.New("session token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeSessionMalformed).
	WithCode(errors.CodeUnauthorized)

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

// IsAccountExistsError checks for registration conflicts.
func IsAccountExistsError(err error) bool {
	return hasTextCode(err, TextCodeAccountExists)
}

// AccountExistsStatus extracts the provider-side status ("CONFIRMED",
// "UNCONFIRMED", ...) from an ErrAccountExists clone.
func AccountExistsStatus(err error) (string, bool) {
	if !IsAccountExistsError(err) {
		return "", false
	}
	var richErr *errors.Error
	if !errors.As(err, &richErr) || richErr.Metadata == nil {
		return "", false
	}
	status, ok := richErr.Metadata[MetadataStatusKey].(string)
	return status, ok
}

// IsAccountNotFoundError checks for lookups of unknown accounts.
func IsAccountNotFoundError(err error) bool {
	return hasTextCode(err, TextCodeAccountNotFound)
}

// IsInvalidConfirmationCodeError checks for rejected confirmation codes.
func IsInvalidConfirmationCodeError(err error) bool {
	return hasTextCode(err, TextCodeInvalidCode)
}

// IsProviderUnavailableError checks for unclassified provider faults.
func IsProviderUnavailableError(err error) bool {
	return hasTextCode(err, TextCodeProviderFailure)
}

// IsInvalidCredentialsError checks for the opaque sign-in failure.
func IsInvalidCredentialsError(err error) bool {
	return hasTextCode(err, TextCodeInvalidCreds)
}

// IsRefreshExpiredError checks whether a refresh attempt was rejected.
func IsRefreshExpiredError(err error) bool {
	return hasTextCode(err, TextCodeRefreshExpired)
}

// IsUnauthenticatedError reports whether the caller should be treated as anonymous.
func IsUnauthenticatedError(err error) bool {
	return hasTextCode(err, TextCodeUnauthenticated)
}

// IsTokenExpiredError will check for expired session tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return hasTextCode(err, TextCodeSessionExpired) ||
		strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for undecodable session tokens
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return hasTextCode(err, TextCodeSessionMalformed) ||
		strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
