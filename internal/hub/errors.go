package hub

import "errors"

var (
	// ErrHubNotFound is returned when a hub id or owner email matches no row.
	ErrHubNotFound = errors.New("hub: not found")

	// ErrHubExists is returned when creating a hub whose id is taken.
	ErrHubExists = errors.New("hub: already exists")

	// ErrAlreadyClaimed is returned when another identity owns the hub.
	ErrAlreadyClaimed = errors.New("hub: already claimed")

	// ErrInvalidHub is returned when hub fields fail validation.
	ErrInvalidHub = errors.New("hub: invalid")
)
