package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	auth "github.com/stackmill/go-cognito-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testSession() *auth.SessionObject {
	accessExpiry := time.Now().Add(time.Hour)
	return &auth.SessionObject{
		UserID:       "peggy@example.com",
		AccessToken:  "access-token-1",
		RefreshToken: "refresh-token-1",
		AccessExpiry: &accessExpiry,
	}
}

func TestNewHTTPAuthenticator(t *testing.T) {
	mockAuth := new(MockAuthenticator)

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})

	require.NoError(t, err)
	assert.NotNil(t, httpAuth)
	assert.Equal(t, 24*time.Hour, httpAuth.GetCookieDuration())
	assert.Equal(t, 72*time.Hour, httpAuth.GetExtendedCookieDuration())
}

func TestRouteAuthenticator_Login(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)

	mockAuth.On("SignIn", mock.Anything, "peggy@example.com", "s3cret-pass").
		Return("valid.jwt.token", nil)

	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "app:session" && c.Value == "valid.jwt.token" && c.HTTPOnly
	})).Return()

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	payload := MockLoginPayload{
		Identifier: "peggy@example.com",
		Password:   "s3cret-pass",
	}

	err = httpAuth.Login(mockCtx, payload)
	require.NoError(t, err)

	mockAuth.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
}

func TestRouteAuthenticator_LoginExtendedSession(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)

	mockAuth.On("SignInExtended", mock.Anything, "peggy@example.com", "s3cret-pass").
		Return("extended.jwt.token", nil)

	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "app:session" &&
			c.Value == "extended.jwt.token" &&
			c.Expires.After(time.Now().Add(48*time.Hour))
	})).Return()

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	payload := MockLoginPayload{
		Identifier:      "peggy@example.com",
		Password:        "s3cret-pass",
		ExtendedSession: true,
	}

	err = httpAuth.Login(mockCtx, payload)
	require.NoError(t, err)

	mockAuth.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
}

func TestRouteAuthenticator_LoginError(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)

	mockAuth.On("SignIn", mock.Anything, "peggy@example.com", "wrongpass").
		Return("", auth.ErrInvalidCredentials)

	mockCtx.On("Context").Return(context.Background())

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	payload := MockLoginPayload{
		Identifier: "peggy@example.com",
		Password:   "wrongpass",
	}

	err = httpAuth.Login(mockCtx, payload)
	require.Error(t, err)
	assert.True(t, auth.IsInvalidCredentialsError(err))

	mockAuth.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
}

func TestRouteAuthenticator_LogoutWithoutSession(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)

	mockCtx.On("Cookies", "app:session").Return("")
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "app:session" && c.Value == "" && c.Expires.Before(time.Now())
	})).Return()

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	httpAuth.Logout(mockCtx)

	mockAuth.AssertNotCalled(t, "SignOut", mock.Anything, mock.Anything)
	mockCtx.AssertExpectations(t)
}

func TestRouteAuthenticator_LogoutClearsCookieDespiteRemoteFailure(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)
	session := testSession()

	mockCtx.On("Cookies", "app:session").Return("session.jwt.token")
	mockCtx.On("Context").Return(context.Background())

	mockAuth.On("SessionFromToken", "session.jwt.token").Return(session, nil)
	mockAuth.On("SignOut", mock.Anything, session).Return(auth.ErrProviderUnavailable)

	cookieCleared := false
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		if c.Name == "app:session" && c.Value == "" && c.Expires.Before(time.Now()) {
			cookieCleared = true
			return true
		}
		return false
	})).Return()

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	httpAuth.Logout(mockCtx)

	assert.True(t, cookieCleared, "the local session must be cleared even when remote sign-out fails")
	mockAuth.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
}

func TestRouteAuthenticator_ProtectedRoute(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)
	session := testSession()

	principal := auth.Principal{
		ID:        "uuid-sub-123",
		Email:     "peggy@example.com",
		Confirmed: true,
	}

	mockCtx.On("Cookies", "app:session").Return("session.jwt.token")
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Locals", auth.PrincipalContextKey, principal).Return(nil)
	mockCtx.On("Locals", auth.SessionContextKey, mock.Anything).Return(nil)

	mockAuth.On("SessionFromToken", "session.jwt.token").Return(session, nil)
	mockAuth.On("PrincipalFromSession", mock.Anything, session).Return(principal, "", nil)

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	middleware := httpAuth.ProtectedRoute(nil)

	nextCalled := false
	err = middleware(func(c router.Context) error {
		nextCalled = true
		return nil
	})(mockCtx)

	require.NoError(t, err)
	assert.True(t, nextCalled)
	mockAuth.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
}

func TestRouteAuthenticator_ProtectedRouteMissingCookie(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)

	mockCtx.On("Cookies", "app:session").Return("")
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "app:session" && c.Value == ""
	})).Return()

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	var handled error
	middleware := httpAuth.ProtectedRoute(func(c router.Context, err error) error {
		handled = err
		return nil
	})

	err = middleware(func(c router.Context) error {
		t.Fatal("next handler must not run without a session")
		return nil
	})(mockCtx)

	require.NoError(t, err)
	require.Error(t, handled)
	mockCtx.AssertExpectations(t)
}

func TestRouteAuthenticator_ProtectedRouteRotatesRefreshedCookie(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)
	session := testSession()
	refreshedSession := testSession()
	refreshedSession.AccessToken = "access-token-2"

	principal := auth.Principal{ID: "uuid-sub-123", Email: "peggy@example.com", Confirmed: true}

	mockCtx.On("Cookies", "app:session").Return("stale.jwt.token")
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "app:session" && c.Value == "fresh.jwt.token" && c.Expires.After(time.Now())
	})).Return()
	mockCtx.On("Locals", auth.PrincipalContextKey, principal).Return(nil)
	mockCtx.On("Locals", auth.SessionContextKey, mock.Anything).Return(nil)

	mockAuth.On("SessionFromToken", "stale.jwt.token").Return(session, nil)
	mockAuth.On("PrincipalFromSession", mock.Anything, session).Return(principal, "fresh.jwt.token", nil)
	mockAuth.On("SessionFromToken", "fresh.jwt.token").Return(refreshedSession, nil)

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	nextCalled := false
	err = httpAuth.ProtectedRoute(nil)(func(c router.Context) error {
		nextCalled = true
		return nil
	})(mockCtx)

	require.NoError(t, err)
	assert.True(t, nextCalled)
	mockAuth.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
}

func TestRouteAuthenticator_ProtectedRouteUnauthenticated(t *testing.T) {
	mockAuth := new(MockAuthenticator)
	mockCtx := new(MockContext)
	session := testSession()

	mockCtx.On("Cookies", "app:session").Return("session.jwt.token")
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "app:session" && c.Value == ""
	})).Return()

	mockAuth.On("SessionFromToken", "session.jwt.token").Return(session, nil)
	mockAuth.On("PrincipalFromSession", mock.Anything, session).
		Return(auth.Principal{}, "", auth.ErrUnauthenticated)

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	var handled error
	err = httpAuth.ProtectedRoute(func(c router.Context, err error) error {
		handled = err
		return nil
	})(func(c router.Context) error {
		t.Fatal("next handler must not run for an unauthenticated caller")
		return nil
	})(mockCtx)

	require.NoError(t, err)
	assert.True(t, auth.IsUnauthenticatedError(handled))
	mockAuth.AssertExpectations(t)
	mockCtx.AssertExpectations(t)
}

func TestRouteAuthenticator_RedirectFunctions(t *testing.T) {
	mockAuth := new(MockAuthenticator)

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	t.Run("SetRedirect", func(t *testing.T) {
		mockCtx := new(MockContext)

		mockCtx.On("OriginalURL").Return("/dashboard")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "auth_redirect" && c.Value == "/dashboard" && c.HTTPOnly
		})).Return()

		httpAuth.SetRedirect(mockCtx)

		mockCtx.AssertExpectations(t)
	})

	t.Run("GetRedirect", func(t *testing.T) {
		mockCtx := new(MockContext)

		mockCtx.On("Cookies", "auth_redirect").Return("/dashboard")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "auth_redirect" && c.Value == "" && c.Expires.Before(time.Now())
		})).Return()

		redirect := httpAuth.GetRedirect(mockCtx, "/home")
		assert.Equal(t, "/dashboard", redirect)

		mockCtx.AssertExpectations(t)
	})

	t.Run("GetRedirect falls back to default", func(t *testing.T) {
		mockCtx := new(MockContext)

		mockCtx.On("Cookies", "auth_redirect").Return("")

		redirect := httpAuth.GetRedirect(mockCtx, "/home")
		assert.Equal(t, "/home", redirect)

		mockCtx.AssertExpectations(t)
	})

	t.Run("GetRedirect without default uses configured route", func(t *testing.T) {
		mockCtx := new(MockContext)

		mockCtx.On("Cookies", "auth_redirect").Return("")

		redirect := httpAuth.GetRedirect(mockCtx)
		assert.Equal(t, "/login", redirect)

		mockCtx.AssertExpectations(t)
	})

	t.Run("GetRedirectOrDefault", func(t *testing.T) {
		mockCtx := new(MockContext)

		mockCtx.On("Referer").Return("/some-referer")
		mockCtx.On("Cookies", "auth_redirect", "/some-referer").Return("")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "auth_redirect" && c.Value == "" && c.Expires.Before(time.Now())
		})).Return()

		redirect := httpAuth.GetRedirectOrDefault(mockCtx)
		assert.Equal(t, "/login", redirect)

		mockCtx.AssertExpectations(t)
	})
}

func TestRouteAuthenticator_MakeClientRouteAuthErrorHandler(t *testing.T) {
	mockAuth := new(MockAuthenticator)

	httpAuth, err := auth.NewHTTPAuthenticator(mockAuth, testConfig{})
	require.NoError(t, err)

	t.Run("optional auth proceeds on failure", func(t *testing.T) {
		mockCtx := new(MockContext)

		handler := httpAuth.MakeClientRouteAuthErrorHandler(true)

		err := handler(mockCtx, errors.New("token is malformed"))
		require.NoError(t, err)
		assert.True(t, mockCtx.NextCalled, "next handler should run for optional routes")

		mockCtx.AssertExpectations(t)
	})

	t.Run("required auth invokes the error handler", func(t *testing.T) {
		mockCtx := new(MockContext)

		var authErrorCalled bool
		origHandler := httpAuth.AuthErrorHandler
		httpAuth.AuthErrorHandler = func(c router.Context, err error) error {
			authErrorCalled = true
			return c.Redirect("/login", http.StatusSeeOther)
		}
		defer func() { httpAuth.AuthErrorHandler = origHandler }()

		handler := httpAuth.MakeClientRouteAuthErrorHandler(false)

		mockCtx.On("Redirect", "/login", []int{http.StatusSeeOther}).Return(nil)

		err := handler(mockCtx, errors.New("token is expired"))
		require.NoError(t, err)
		assert.True(t, authErrorCalled)

		mockCtx.AssertExpectations(t)
	})
}
