package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/phkit/pkg/storage"
)

// openStore builds the store for cfg.Persistence. The returned redis client
// is nil unless Config.RedisURL is set; the caller owns it.
func openStore(ctx context.Context, cfg Config, log *slog.Logger) (storage.Store, *redis.Client, error) {
	if cfg.Persistence == PersistenceMemory || cfg.Persistence == PersistenceSessionStorage {
		return storage.NewMemoryStore(), nil, nil
	}

	var (
		primary storage.Store
		rdb     *redis.Client
	)
	switch {
	case cfg.RedisURL != "":
		rcfg := storage.RedisConfig{
			ConnectionURL:  cfg.RedisURL,
			KeyPrefix:      "phkit:",
			TTL:            storage.DefaultCookieMaxAge,
			OpTimeout:      2 * time.Second,
			RetryAttempts:  3,
			RetryInterval:  time.Second,
			ConnectTimeout: 10 * time.Second,
		}
		client, err := storage.ConnectRedis(ctx, rcfg)
		if err != nil {
			return nil, nil, err
		}
		rdb = client
		primary = storage.NewRedisStore(client, rcfg)
	case cfg.PersistencePath != "":
		primary = storage.NewFileStore(cfg.PersistencePath)
	default:
		primary = storage.NewMemoryStore()
	}

	cookies := func() (storage.Store, error) {
		site, err := url.Parse(cfg.SiteURL)
		if err != nil || site.Host == "" {
			return nil, fmt.Errorf("%w: site url %q", ErrInvalidConfig, cfg.SiteURL)
		}
		return storage.NewCookieStore(storage.NewCookieJar(), site,
			storage.WithCrossSubdomain(cfg.CrossSubdomainCookie),
			storage.WithSecure(cfg.SecureCookie),
		), nil
	}

	fail := func(err error) (storage.Store, *redis.Client, error) {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, err
	}

	switch cfg.Persistence {
	case PersistenceLocalStorage:
		return primary, rdb, nil
	case PersistenceCookie:
		s, err := cookies()
		if err != nil {
			return fail(err)
		}
		return s, rdb, nil
	case PersistenceLocalStoragePlusCookie, "":
	default:
		log.Warn("unknown persistence mode, using localStorage+cookie",
			slog.String("persistence", cfg.Persistence))
	}

	s, err := cookies()
	if err != nil {
		return fail(err)
	}
	return storage.NewSplitStore(primary, s), rdb, nil
}
