package session

import "errors"

var (
	// ErrNoPersistence indicates the manager was built without a persistence backend
	ErrNoPersistence = errors.New("session.no_persistence")

	// ErrCookielessMode indicates cookieless mode "always" forbids session ids
	ErrCookielessMode = errors.New("session.cookieless_mode")
)
