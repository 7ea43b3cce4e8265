package auth

import (
	"context"
	"strings"
	"time"
)

type Auther struct {
	client       IdentityClient
	tokenService TokenService
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// NewAuthenticator returns a new Authenticator wrapping the identity client.
func NewAuthenticator(client IdentityClient, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	).WithExtendedExpiration(opts.GetExtendedTokenDuration())

	return &Auther{
		client:       client,
		tokenService: tokenService,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithTokenService overrides the session token service.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClock injects a custom time source (useful for tests).
func (s *Auther) WithClock(clock func() time.Time) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Register asks the provider to create an account for the identifier. When
// the account already exists the error carries the provider-side status; use
// AccountExistsStatus to route unconfirmed accounts to the confirmation flow.
func (s *Auther) Register(ctx context.Context, identifier, password string) error {
	identifier = NormalizeIdentifier(identifier)

	if err := s.client.Register(ctx, identifier, password); err != nil {
		s.logger.Debug("Register provider error", "identifier", identifier, "error", err)
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventRegister, ActorRef{ID: identifier, Type: "user"}, identifier, nil)
	return nil
}

// ResendConfirmation asks the provider to re-send the confirmation code.
func (s *Auther) ResendConfirmation(ctx context.Context, identifier string) error {
	return s.client.ResendConfirmation(ctx, NormalizeIdentifier(identifier))
}

// Confirm submits the emailed confirmation code.
func (s *Auther) Confirm(ctx context.Context, identifier, code string) error {
	identifier = NormalizeIdentifier(identifier)

	if err := s.client.Confirm(ctx, identifier, code); err != nil {
		return err
	}

	s.emitAuthEvent(ctx, ActivityEventConfirmed, ActorRef{ID: identifier, Type: "user"}, identifier, nil)
	return nil
}

// SignIn authenticates the identifier against the provider and returns a
// signed session token carrying the provider token set.
func (s *Auther) SignIn(ctx context.Context, identifier, password string) (string, error) {
	return s.signIn(ctx, identifier, password, false)
}

// SignInExtended behaves like SignIn with the extended cookie lifetime.
func (s *Auther) SignInExtended(ctx context.Context, identifier, password string) (string, error) {
	return s.signIn(ctx, identifier, password, true)
}

func (s *Auther) signIn(ctx context.Context, identifier, password string, extended bool) (string, error) {
	identifier = NormalizeIdentifier(identifier)

	tokens, err := s.client.SignIn(ctx, identifier, password)
	if err != nil {
		// The detailed provider reason stays in the logs; callers only ever
		// see the opaque failure.
		s.logger.Debug("SignIn provider error", "identifier", identifier, "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, identifier, map[string]any{
			"error": err.Error(),
		})
		return "", err
	}

	token, err := s.tokenService.Mint(identifier, tokens, extended)
	if err != nil {
		s.logger.Error("SignIn token mint error", "error", err)
		return "", err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, ActorRef{ID: identifier, Type: "user"}, identifier, nil)

	return token, nil
}

// SessionFromToken validates a session cookie token and rebuilds the session record.
func (s *Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Debug("SessionFromToken validation failed", "error", err)
		return nil, err
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims", "error", err)
		return nil, err
	}

	return session, nil
}

// RefreshSession exchanges the session's refresh token for a new access token
// and re-mints the cookie token. The caller must replace its cookie with the
// returned token string.
func (s *Auther) RefreshSession(ctx context.Context, session Session) (Session, string, error) {
	identifier := session.GetUserID()

	tokens, err := s.client.Refresh(ctx, identifier, session.GetRefreshToken())
	if err != nil {
		s.logger.Debug("RefreshSession provider error", "identifier", identifier, "error", err)
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, ActorRef{ID: identifier, Type: "user"}, identifier, map[string]any{
			"error": err.Error(),
		})
		return nil, "", err
	}

	// The provider may omit the refresh token on a refresh grant; carry the
	// current one forward.
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = session.GetRefreshToken()
	}

	token, err := s.tokenService.Mint(identifier, tokens, false)
	if err != nil {
		return nil, "", err
	}

	refreshed, err := s.SessionFromToken(token)
	if err != nil {
		return nil, "", err
	}

	s.emitAuthEvent(ctx, ActivityEventRefreshSuccess, ActorRef{ID: identifier, Type: "user"}, identifier, nil)

	return refreshed, token, nil
}

// PrincipalFromSession re-derives the principal from the session identifier
// plus a fresh profile fetch. When the access token has expired it attempts
// exactly one refresh; if that fails the caller is unauthenticated, never
// faulted. The second return value is a re-minted cookie token when a refresh
// happened, empty otherwise.
func (s *Auther) PrincipalFromSession(ctx context.Context, session Session) (Principal, string, error) {
	refreshedToken := ""

	if session.Expired(s.now()) {
		refreshed, token, err := s.RefreshSession(ctx, session)
		if err != nil {
			clone := ErrUnauthenticated.Clone()
			clone.Source = err
			return Principal{}, "", clone
		}
		session = refreshed
		refreshedToken = token
	}

	profile, err := s.client.GetProfile(ctx, session.GetUserID())
	if err != nil {
		s.logger.Debug("PrincipalFromSession profile fetch error", "identifier", session.GetUserID(), "error", err)
		clone := ErrUnauthenticated.Clone()
		clone.Source = err
		return Principal{}, "", clone
	}

	return PrincipalFromProfile(session.GetUserID(), profile), refreshedToken, nil
}

// SignOut invalidates every outstanding token for the session's account
// server-side. Local session state is the caller's to clear and must be
// cleared whether or not this succeeds.
func (s *Auther) SignOut(ctx context.Context, session Session) error {
	identifier := session.GetUserID()

	err := s.client.SignOut(ctx, identifier)
	if err != nil {
		s.logger.Warn("SignOut remote invalidation error", "identifier", identifier, "error", err)
	}

	s.emitAuthEvent(ctx, ActivityEventSignOut, ActorRef{ID: identifier, Type: "user"}, identifier, nil)

	return err
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "error", err)
	}
}

// NormalizeIdentifier lower-cases and trims the email used as username so
// every provider call and integrity tag sees the same form.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
