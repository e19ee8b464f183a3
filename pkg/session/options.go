package session

import (
	"log/slog"

	"github.com/facebookgo/clock"

	"github.com/dmitrymomot/phkit/pkg/storage"
	"github.com/dmitrymomot/phkit/pkg/uuidv7"
)

// Option is a functional option for configuring the Manager
type Option func(*Manager)

// WithConfig sets the whole configuration
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.config = cfg
	}
}

// WithSessionStore sets the tab-scoped store holding the window id and the
// primary-window flag. Without one, window ids live in memory only.
func WithSessionStore(store storage.Store) Option {
	return func(m *Manager) {
		m.sessionStore = store
	}
}

// WithClock replaces the wall clock, mainly for tests
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithSessionIDGenerator overrides session id generation
func WithSessionIDGenerator(gen uuidv7.Generator) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newSessionID = gen
		}
	}
}

// WithWindowIDGenerator overrides window id generation
func WithWindowIDGenerator(gen uuidv7.Generator) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newWindowID = gen
		}
	}
}

// WithIdleTimeoutSeconds sets the idle timeout; the value is clamped
func WithIdleTimeoutSeconds(seconds int) Option {
	return func(m *Manager) {
		m.config.IdleTimeoutSeconds = seconds
	}
}

// WithBootstrapSessionID seeds the session from an externally created v7 id
func WithBootstrapSessionID(id string) Option {
	return func(m *Manager) {
		m.config.BootstrapSessionID = id
	}
}

// WithCookielessMode sets the cookieless mode; "always" makes New fail
func WithCookielessMode(mode string) Option {
	return func(m *Manager) {
		m.config.CookielessMode = mode
	}
}

// WithPersistenceName scopes the window storage keys
func WithPersistenceName(name string) Option {
	return func(m *Manager) {
		m.config.PersistenceName = name
	}
}

// WithPersistenceMode sets the persistence mode; "memory" disables the
// tab-scoped store
func WithPersistenceMode(mode string) Option {
	return func(m *Manager) {
		m.config.PersistenceMode = mode
	}
}
