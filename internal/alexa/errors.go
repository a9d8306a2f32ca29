package alexa

import "errors"

var (
	// ErrUpstream wraps any non-2xx reply from an Amazon endpoint.
	ErrUpstream = errors.New("alexa: upstream failure")

	ErrMissingCredentials = errors.New("alexa: client id or secret not configured")
	ErrNoRefreshToken     = errors.New("alexa: no refresh token")
	ErrInvalidProfile     = errors.New("alexa: profile has no user id")
)
