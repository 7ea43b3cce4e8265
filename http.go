package auth

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// PrincipalContextKey is the locals key under which the protected-route
// middleware stores the reconstructed principal.
const PrincipalContextKey = "auth_principal"

// SessionContextKey is the locals key under which the protected-route
// middleware stores the active session.
const SessionContextKey = "auth_session"

type RouteAuthenticator struct {
	auth                   Authenticator
	cfg                    Config
	cookieDuration         time.Duration
	extendedCookieDuration time.Duration
	Logger                 Logger
	AuthErrorHandler       func(c router.Context, err error) error
	ErrorHandler           func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	cookieDuration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	extendedCookieDuration := cookieDuration
	if cfg.GetExtendedTokenDuration() > 0 {
		extendedCookieDuration = time.Duration(cfg.GetExtendedTokenDuration()) * time.Hour
	}

	a := &RouteAuthenticator{
		cfg:                    cfg,
		auth:                   auther,
		Logger:                 defLogger{},
		cookieDuration:         cookieDuration,
		extendedCookieDuration: extendedCookieDuration,
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

func (a RouteAuthenticator) GetExtendedCookieDuration() time.Duration {
	return a.extendedCookieDuration
}

// ProtectedRoute reconstructs the principal on every request: session cookie
// to session record, refresh when the access token expired, then a fresh
// profile fetch. Any failure clears the local session and hands the request
// to the error handler as unauthenticated.
func (a *RouteAuthenticator) ProtectedRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = a.defaultAuthErrHandler
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			session, err := a.SessionFromRequest(c)
			if err != nil {
				a.cookieDel(c, a.cfg.GetContextKey())
				return errorHandler(c, err)
			}

			principal, refreshedToken, err := a.auth.PrincipalFromSession(c.Context(), session)
			if err != nil {
				a.cookieDel(c, a.cfg.GetContextKey())
				return errorHandler(c, err)
			}

			if refreshedToken != "" {
				a.setCookieToken(c, refreshedToken, a.cookieDuration)
				if refreshed, serr := a.auth.SessionFromToken(refreshedToken); serr == nil {
					session = refreshed
				}
			}

			c.Locals(PrincipalContextKey, principal)
			c.Locals(SessionContextKey, session)

			return next(c)
		}
	}
}

// SessionFromRequest decodes the session cookie into a session record.
func (a *RouteAuthenticator) SessionFromRequest(c router.Context) (Session, error) {
	raw := c.Cookies(a.cfg.GetContextKey())
	if raw == "" {
		return nil, ErrUnableToFindSession
	}
	return a.auth.SessionFromToken(raw)
}

func (a *RouteAuthenticator) Login(ctx router.Context, payload LoginPayload) error {
	signIn := a.auth.SignIn
	duration := a.cookieDuration
	if payload.GetExtendedSession() {
		signIn = a.auth.SignInExtended
		duration = a.extendedCookieDuration
	}

	token, err := signIn(ctx.Context(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error", "error", err)
		return err
	}

	a.setCookieToken(ctx, token, duration)
	return nil
}

// Logout performs a best-effort remote invalidation and always clears the
// local session cookie, even when the remote call fails.
func (a *RouteAuthenticator) Logout(ctx router.Context) {
	if session, err := a.SessionFromRequest(ctx); err == nil {
		if err := a.auth.SignOut(ctx.Context(), session); err != nil {
			a.Logger.Warn("Logout remote invalidation failed", "error", err)
		}
	}

	a.cookieDel(ctx, a.cfg.GetContextKey())
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else if IsUnauthenticatedError(err) {
			richErr = ErrUnauthenticated
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication session").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return ctx.Next()
		}

		return a.AuthErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) GetRedirect(ctx router.Context, def ...string) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(rejectedRoute)
	if r == "" {
		if len(def) > 0 {
			return def[0]
		}
		return a.cfg.GetRejectedRouteDefault()
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RouteAuthenticator) GetRedirectOrDefault(ctx router.Context) string {
	rejectedRoute := a.cfg.GetRejectedRouteKey()
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRoute, refererHeader)
	if r == "" {
		r = a.cfg.GetRejectedRouteDefault()
	}
	a.cookieDel(ctx, rejectedRoute)
	return r
}

func (a *RouteAuthenticator) SetRedirect(ctx router.Context) {
	rejectedRoute := a.cfg.GetRejectedRouteKey()

	a.Logger.Info("Setting redirect cookie", "key", rejectedRoute, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRoute,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string, duration time.Duration) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect("/login", statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}

// PrincipalFromContext returns the principal stored by ProtectedRoute.
func PrincipalFromContext(c router.Context) (Principal, bool) {
	principal, ok := c.Locals(PrincipalContextKey).(Principal)
	return principal, ok
}

// SessionFromContext returns the session stored by ProtectedRoute.
func SessionFromContext(c router.Context) (Session, bool) {
	session, ok := c.Locals(SessionContextKey).(Session)
	return session, ok
}
