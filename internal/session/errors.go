package session

import "errors"

var (
	ErrMissingSecret = errors.New("session: missing secret")
	ErrUnknownHub    = errors.New("session: unknown hub")
	ErrHubInactive   = errors.New("session: hub inactive")
	ErrInvalidSecret = errors.New("session: invalid secret")

	// ErrUnauthorized is returned when a handle has no live session.
	ErrUnauthorized = errors.New("session: unauthorized")

	// ErrSessionNotFound is the repository-level miss.
	ErrSessionNotFound = errors.New("session: not found")
)
