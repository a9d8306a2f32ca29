package auth

import "errors"

var (
	ErrTokenInvalid     = errors.New("auth: invalid token")
	ErrForbidden        = errors.New("auth: insufficient permissions")
	ErrUnsupportedHash  = errors.New("auth: unsupported secret hash")
	ErrInvalidPHCFormat = errors.New("auth: invalid PHC hash format")
)
