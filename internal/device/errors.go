package device

import "errors"

// Domain errors for the device package.
var (
	// ErrDeviceNotFound is returned when (hub id, endpoint id) matches no row.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidEndpoint is returned when an endpoint descriptor is not a
	// JSON object carrying a non-empty endpointId.
	ErrInvalidEndpoint = errors.New("device: invalid endpoint")

	// ErrInvalidState is returned when a state document is not a JSON object.
	ErrInvalidState = errors.New("device: invalid state")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("device: invalid status transition")
)
