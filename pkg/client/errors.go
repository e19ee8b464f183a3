package client

import "errors"

var (
	ErrMissingAPIKey   = errors.New("client.missing_api_key")
	ErrInvalidConfig   = errors.New("client.invalid_config")
	ErrEmptyEventName  = errors.New("client.empty_event_name")
	ErrEmptyDistinctID = errors.New("client.empty_distinct_id")
	ErrClosed          = errors.New("client.closed")
)
