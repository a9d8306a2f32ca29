package stream

import "errors"

var (
	ErrInvalidRecord = errors.New("stream: invalid record")
	ErrNoTransport   = errors.New("stream: mqtt transport requires an mqtt client")
)
