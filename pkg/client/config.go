package client

import (
	"github.com/dmitrymomot/phkit/pkg/config"
)

// Persistence modes.
const (
	PersistenceLocalStoragePlusCookie = "localStorage+cookie"
	PersistenceLocalStorage           = "localStorage"
	PersistenceCookie                 = "cookie"
	PersistenceMemory                 = "memory"
	PersistenceSessionStorage         = "sessionStorage"
)

// Config holds client configuration
type Config struct {
	APIKey  string `env:"POSTHOG_API_KEY"`
	APIHost string `env:"POSTHOG_API_HOST" envDefault:"https://us.i.posthog.com"`

	// SiteURL is the site identity cookies are scoped to.
	SiteURL string `env:"POSTHOG_SITE_URL" envDefault:"http://localhost"`

	Persistence        string `env:"POSTHOG_PERSISTENCE" envDefault:"localStorage+cookie"`
	PersistenceName    string `env:"POSTHOG_PERSISTENCE_NAME" envDefault:"posthog"`
	PersistencePath    string `env:"POSTHOG_PERSISTENCE_PATH" envDefault:""`
	DisablePersistence bool   `env:"POSTHOG_DISABLE_PERSISTENCE" envDefault:"false"`
	CookielessMode     string `env:"POSTHOG_COOKIELESS_MODE" envDefault:""`

	// RedisURL switches the primary store to Redis when set.
	RedisURL string `env:"POSTHOG_REDIS_URL" envDefault:""`

	CrossSubdomainCookie bool `env:"POSTHOG_CROSS_SUBDOMAIN_COOKIE" envDefault:"true"`
	SecureCookie         bool `env:"POSTHOG_SECURE_COOKIE" envDefault:"false"`

	SessionIdleTimeoutSeconds int `env:"POSTHOG_SESSION_IDLE_TIMEOUT_SECONDS" envDefault:"1800"`

	FlushIntervalMs int    `env:"POSTHOG_FLUSH_INTERVAL_MS" envDefault:"3000"`
	RequestBatching bool   `env:"POSTHOG_REQUEST_BATCHING" envDefault:"true"`
	Compression     string `env:"POSTHOG_COMPRESSION" envDefault:""`
	MaxRetries      int    `env:"POSTHOG_MAX_RETRIES" envDefault:"10"`

	Debug bool `env:"POSTHOG_DEBUG" envDefault:"false"`
}

// DefaultConfig returns default client configuration for apiKey
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:                    apiKey,
		APIHost:                   "https://us.i.posthog.com",
		SiteURL:                   "http://localhost",
		Persistence:               PersistenceLocalStoragePlusCookie,
		PersistenceName:           "posthog",
		CrossSubdomainCookie:      true,
		SessionIdleTimeoutSeconds: 1800,
		FlushIntervalMs:           3000,
		RequestBatching:           true,
		MaxRetries:                10,
	}
}

// ConfigFromEnv loads Config from POSTHOG_* environment variables and .env.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.APIKey == "" {
		return Config{}, ErrMissingAPIKey
	}
	return cfg, nil
}
