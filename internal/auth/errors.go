// Package auth authenticates callers of the audit API with bearer JWTs and
// scopes them to the communities they may inspect.
package auth

import "errors"

var (
	// ErrInvalidToken indicates the token is malformed or has an invalid signature.
	ErrInvalidToken    = errors.New("invalid token")
	ErrExpiredToken    = errors.New("token has expired")
	ErrInvalidIssuer   = errors.New("invalid token issuer")
	ErrInvalidAudience = errors.New("invalid token audience")
	ErrMissingToken    = errors.New("missing authentication token")

	// ErrUnsupportedAlgorithm indicates the token uses a signing algorithm
	// with no configured key.
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
	ErrNoKeyConfigured      = errors.New("no signing key configured")
)
