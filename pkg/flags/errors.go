package flags

import "errors"

var (
	ErrNoTransport     = errors.New("flags.no_transport")
	ErrInvalidResponse = errors.New("flags.invalid_response")
	ErrRequestFailed   = errors.New("flags.request_failed")
)
