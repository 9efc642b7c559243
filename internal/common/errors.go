// Package common defines shared constants and sentinel errors used across
// the keyforge server and its tooling. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors.
	ErrInvalidField = errors.New("invalid field")

	// Request credential errors.
	ErrMissingCredential = errors.New("missing credential")

	// Bearer token errors.
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired          = errors.New("token expired")
	ErrUnknownSubject        = errors.New("unknown token subject")
)
