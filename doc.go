// Package auth wires server-rendered web authentication to a managed cloud
// identity provider. The provider owns credential storage, confirmation
// codes, and token issuance; this package owns the thin lifecycle around it.
//
// Session lifecycle:
//   - SignIn stores the provider's access token, refresh token, and expiry
//     inside a signed session cookie token. On every request that needs an
//     identity the session is rebuilt from the cookie, refreshed at most once
//     when the access token expired, and a fresh profile fetch produces the
//     Principal. A failed refresh demotes the caller to anonymous; it never
//     surfaces as a fault.
//   - Sign-out invalidates outstanding tokens server-side best-effort and
//     always clears the local cookie.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter describing register,
//     confirm, login, refresh, and sign-out events. Sinks run best-effort
//     (errors are logged) so you can forward to a database or queue without
//     blocking authentication.
//
// The provider adapter lives in provider/cognito; it normalizes every
// provider fault into the tagged errors declared in errors.go.
package auth
