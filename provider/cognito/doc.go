// Package cognito adapts an AWS Cognito user pool to the auth package.
//
// Client implements auth.IdentityClient over the pool's admin API, and
// TokenValidator verifies Cognito-issued access tokens against the pool's
// published JWKS.
package cognito
