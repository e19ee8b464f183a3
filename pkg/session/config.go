package session

import "time"

const (
	// MaxSessionLength is the absolute ceiling of a session, regardless of activity.
	MaxSessionLength = 24 * time.Hour

	DefaultIdleTimeoutSeconds = 30 * 60
	MinIdleTimeoutSeconds     = 60
	MaxIdleTimeoutSeconds     = 10 * 60 * 60

	// PersistenceMemory disables the tab-scoped window store.
	PersistenceMemory = "memory"

	// CookielessAlways forbids session tracking entirely.
	CookielessAlways = "always"
)

// Config holds session manager configuration
type Config struct {
	// IdleTimeoutSeconds is clamped to [60, 36000]; zero means 1800.
	IdleTimeoutSeconds int `env:"POSTHOG_SESSION_IDLE_TIMEOUT_SECONDS" envDefault:"1800"`

	// PersistenceName scopes the window storage keys (default: "posthog").
	PersistenceName string `env:"POSTHOG_PERSISTENCE_NAME" envDefault:"posthog"`

	// PersistenceMode "memory" disables the tab-scoped store.
	PersistenceMode string `env:"POSTHOG_PERSISTENCE" envDefault:"localStorage+cookie"`

	CookielessMode string `env:"POSTHOG_COOKIELESS_MODE" envDefault:""`

	// BootstrapSessionID seeds the session from a server-rendered v7 id.
	BootstrapSessionID string `env:"POSTHOG_BOOTSTRAP_SESSION_ID" envDefault:""`
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		IdleTimeoutSeconds: DefaultIdleTimeoutSeconds,
		PersistenceName:    "posthog",
		PersistenceMode:    "localStorage+cookie",
	}
}
