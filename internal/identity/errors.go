package identity

import "errors"

var (
	// ErrMappingNotFound means the identity has no row.
	ErrMappingNotFound = errors.New("identity: mapping not found")

	// ErrNoHubAssigned means no hub waits for this identity's email.
	ErrNoHubAssigned = errors.New("identity: no hub assigned to this email")

	// ErrAlreadyClaimed means another identity owns the hub.
	ErrAlreadyClaimed = errors.New("identity: hub already claimed by another account")

	ErrInvalidIdentity = errors.New("identity: invalid identity")
)
