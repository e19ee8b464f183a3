// Package config loads typed configuration structs from the environment.
//
// It wraps github.com/joho/godotenv (optional .env files) and
// github.com/caarlos0/env/v11 (struct tag parsing). Each struct type is parsed
// once and cached, so SDK components can call Load on hot-ish paths without
// re-reading the environment:
//
//	type Config struct {
//	    APIKey string `env:"POSTHOG_API_KEY,required"`
//	    Host   string `env:"POSTHOG_API_HOST" envDefault:"https://us.i.posthog.com"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// LoadEnv reads additional .env files before the first Load. ResetCache drops
// cached values, which tests use after changing the environment.
package config
