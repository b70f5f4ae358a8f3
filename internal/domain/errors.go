package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrBookNotFound signals a missing book.
	ErrBookNotFound = errors.New("book not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrValidation signals malformed input, rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials signals a failed sign-in attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken signals an unparseable, expired or revoked token.
	ErrInvalidToken = errors.New("invalid token")

	// ErrProviderUnavailable signals an upstream catalog provider failure.
	ErrProviderUnavailable = errors.New("provider unavailable")
)
