package ratelimit

import "errors"

// ErrUnknownBackend is returned by NewStore for an unsupported backend name.
var ErrUnknownBackend = errors.New("ratelimit: unknown backend")
