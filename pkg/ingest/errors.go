package ingest

import "errors"

var (
	ErrInvalidPayload = errors.New("ingest.invalid_payload")
	ErrBodyTooLarge   = errors.New("ingest.body_too_large")

	// ErrStart indicates that the server failed to start.
	ErrStart = errors.New("ingest.start_failed")
	// ErrShutdown indicates that graceful shutdown failed.
	ErrShutdown = errors.New("ingest.shutdown_failed")
)
