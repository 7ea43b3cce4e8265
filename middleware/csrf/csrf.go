package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-router"
)

var (
	ErrTokenMismatch    = errors.New("CSRF token mismatch")
	ErrTokenMissing     = errors.New("CSRF token missing")
	ErrTokenExpired     = errors.New("CSRF token expired")
	ErrSecureKeyMissing = errors.New("CSRF secure key required")
)

// DefaultTokenLength is the default nonce length for CSRF tokens
const DefaultTokenLength = 32

// DefaultContextKey is the default key for storing CSRF tokens in context
const DefaultContextKey = "csrf_token"

// DefaultFormFieldName is the default name for the CSRF token form field
const DefaultFormFieldName = "_token"

// DefaultHeaderName is the default header name for CSRF tokens
const DefaultHeaderName = "X-CSRF-Token"

// DefaultExpiration bounds how long an issued token stays valid.
const DefaultExpiration = 2 * time.Hour

// Config defines the configuration for CSRF middleware
type Config struct {
	// Skip defines a function to skip middleware
	Skip func(router.Context) bool

	// TokenLength defines the nonce length of the generated token
	TokenLength int

	// ContextKey defines the key for storing the token in context
	ContextKey string

	// FormFieldName defines the name of the form field containing the token
	FormFieldName string

	// HeaderName defines the header name for the token
	HeaderName string

	// SafeMethods defines HTTP methods that don't require CSRF validation
	SafeMethods []string

	// Expiration defines how long issued tokens are valid
	Expiration time.Duration

	// SecureKey keys the HMAC over issued tokens
	SecureKey []byte

	// ErrorHandler defines the error handler
	ErrorHandler router.ErrorHandler
}

func configDefault(config ...Config) Config {
	cfg := Config{}
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.TokenLength <= 0 {
		cfg.TokenLength = DefaultTokenLength
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultFormFieldName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if len(cfg.SafeMethods) == 0 {
		cfg.SafeMethods = []string{"GET", "HEAD", "OPTIONS", "TRACE"}
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = DefaultExpiration
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			return c.Status(403).SendString(err.Error())
		}
	}

	return cfg
}

// New creates a CSRF middleware issuing stateless HMAC-signed tokens. Safe
// methods receive a fresh token in the request context for form rendering;
// unsafe methods must echo a valid token via form field or header.
func New(config ...Config) router.MiddlewareFunc {
	cfg := configDefault(config...)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Skip != nil && cfg.Skip(ctx) {
				return next(ctx)
			}

			if len(cfg.SecureKey) == 0 {
				return cfg.ErrorHandler(ctx, ErrSecureKeyMissing)
			}

			token, err := generateToken(ctx, cfg)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, token)
			ctx.Locals(cfg.ContextKey+"_field", cfg.FormFieldName)
			ctx.Locals(cfg.ContextKey+"_header", cfg.HeaderName)

			method := strings.ToUpper(ctx.Method())
			if slices.Contains(cfg.SafeMethods, method) {
				return next(ctx)
			}

			if err := validateToken(ctx, cfg); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			return next(ctx)
		}
	}
}

func generateToken(ctx router.Context, cfg Config) (string, error) {
	nonce := make([]byte, cfg.TokenLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	timestamp := time.Now().UTC().Unix()
	payload := fmt.Sprintf("%d:%s:%s", timestamp, hex.EncodeToString(nonce), getRequesterKey(ctx))

	mac := hmac.New(sha256.New, cfg.SecureKey)
	mac.Write([]byte(payload))
	signature := mac.Sum(nil)

	token := fmt.Sprintf("%s:%s", payload, hex.EncodeToString(signature))
	return base64.RawURLEncoding.EncodeToString([]byte(token)), nil
}

func validateToken(ctx router.Context, cfg Config) error {
	received := extractToken(ctx, cfg)
	if received == "" {
		return ErrTokenMissing
	}
	return verifyToken(ctx, received, cfg)
}

func verifyToken(ctx router.Context, received string, cfg Config) error {
	decoded, err := base64.RawURLEncoding.DecodeString(received)
	if err != nil {
		return ErrTokenMismatch
	}

	parts := strings.Split(string(decoded), ":")
	if len(parts) != 4 {
		return ErrTokenMismatch
	}

	timestampStr, nonceHex, requesterFromToken, signatureHex := parts[0], parts[1], parts[2], parts[3]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return ErrTokenMismatch
	}

	if _, err := hex.DecodeString(nonceHex); err != nil {
		return ErrTokenMismatch
	}

	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrTokenMismatch
	}

	payload := strings.Join(parts[:3], ":")
	mac := hmac.New(sha256.New, cfg.SecureKey)
	mac.Write([]byte(payload))
	expected := mac.Sum(nil)

	if !hmac.Equal(signature, expected) {
		return ErrTokenMismatch
	}

	if subtle.ConstantTimeCompare([]byte(requesterFromToken), []byte(getRequesterKey(ctx))) != 1 {
		return ErrTokenMismatch
	}

	issued := time.Unix(timestamp, 0)
	if time.Since(issued) > cfg.Expiration {
		return ErrTokenExpired
	}

	return nil
}

// getRequesterKey identifies the client a token is issued to: the session,
// the authenticated user, or the IP as a last resort.
func getRequesterKey(ctx router.Context) string {
	if sessionID := ctx.Locals("session_id"); sessionID != nil {
		if id, ok := sessionID.(string); ok && id != "" {
			return "csrf_" + id
		}
	}

	if userID := ctx.Locals("user_id"); userID != nil {
		if id, ok := userID.(string); ok && id != "" {
			return "csrf_user_" + id
		}
	}

	return "csrf_ip_" + ctx.IP()
}

func extractToken(ctx router.Context, cfg Config) string {
	if form := ctx.FormValue(cfg.FormFieldName); form != "" {
		return form
	}
	return ctx.Header(cfg.HeaderName)
}

// TemplateHelpers returns static fallbacks for the CSRF template slots; the
// per-request values come from RequestHelpers.
func TemplateHelpers() map[string]any {
	return map[string]any{
		"csrf_token": "",
		"csrf_field": "",
	}
}

// RequestHelpers builds view-context entries exposing the request's CSRF
// token as a raw value and as a ready-made hidden input.
func RequestHelpers(ctx router.Context) map[string]any {
	token, _ := ctx.Locals(DefaultContextKey).(string)
	if token == "" {
		return map[string]any{}
	}

	field, _ := ctx.Locals(DefaultContextKey + "_field").(string)
	if field == "" {
		field = DefaultFormFieldName
	}

	return map[string]any{
		"csrf_token": token,
		"csrf_field": fmt.Sprintf(`<input type="hidden" name="%s" value="%s">`, field, token),
	}
}
