package transport

import "errors"

var (
	// ErrRequestFailed wraps network errors and non-200 responses.
	ErrRequestFailed = errors.New("transport.request_failed")

	// ErrInvalidResponse means a 200 response body was not valid JSON.
	ErrInvalidResponse = errors.New("transport.invalid_response")

	// ErrRetriesExhausted is joined to the last failure once the retry budget is spent.
	ErrRetriesExhausted = errors.New("transport.retries_exhausted")

	// ErrSentByBeacon resolves requests handed to the beacon path on unload;
	// their outcome is unknown.
	ErrSentByBeacon = errors.New("transport.sent_by_beacon")

	// ErrClosed resolves requests still pending when the retry queue closes.
	ErrClosed = errors.New("transport.closed")

	// ErrUnsupportedCompression is returned by Encode for unknown modes.
	ErrUnsupportedCompression = errors.New("transport.unsupported_compression")
)
