package push

import "errors"

var (
	// ErrConnectionGone is returned by Send when the handle is not live.
	ErrConnectionGone = errors.New("push: connection gone")

	// ErrBufferFull is returned by Send when the client is not draining.
	ErrBufferFull = errors.New("push: send buffer full")
)
