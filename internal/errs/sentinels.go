// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication (bad credentials).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUsernameTaken is a unique violation on users.username.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrEmailTaken is a unique violation on users.email.
	ErrEmailTaken = errors.New("email already exists")

	// ErrFileNotFound is ErrNotFound for an attached file of an existing case.
	ErrFileNotFound = fmt.Errorf("file %w", ErrNotFound)

	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation")

	// ErrInvalidSession indicates an unknown, revoked or expired session token.
	ErrInvalidSession = errors.New("invalid session")

	// ErrUserNotFound indicates a live session whose user record is gone.
	ErrUserNotFound = errors.New("user not found")

	// ErrUpstream indicates a failure of an external collaborator (LLM, storage).
	ErrUpstream = errors.New("upstream failure")
)
