package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisNotReady is returned by ConnectRedis when every attempt failed.
var ErrRedisNotReady = errors.New("storage.redis_not_ready")

// RedisConfig describes how to reach the shared store.
type RedisConfig struct {
	ConnectionURL  string        `env:"POSTHOG_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	KeyPrefix      string        `env:"POSTHOG_REDIS_KEY_PREFIX" envDefault:"phkit:"`
	TTL            time.Duration `env:"POSTHOG_REDIS_TTL" envDefault:"8760h"`
	OpTimeout      time.Duration `env:"POSTHOG_REDIS_OP_TIMEOUT" envDefault:"2s"`
	RetryAttempts  int           `env:"POSTHOG_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"POSTHOG_REDIS_RETRY_INTERVAL" envDefault:"1s"`
	ConnectTimeout time.Duration `env:"POSTHOG_REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
}

// ConnectRedis opens a client and pings it, retrying RetryAttempts times.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrRedisNotReady, err)
	}

	attempts := max(cfg.RetryAttempts, 1)
	for i := range attempts {
		client := redis.NewClient(opts)
		if err = client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrRedisNotReady, err)
}

// RedisStore keeps values in Redis under a key prefix.
type RedisStore struct {
	db        redis.UniversalClient
	prefix    string
	ttl       time.Duration
	opTimeout time.Duration
}

// NewRedisStore wraps client. Zero TTL means keys never expire.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisStore{
		db:        client,
		prefix:    cfg.KeyPrefix,
		ttl:       cfg.TTL,
		opTimeout: timeout,
	}
}

func (s *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}

func (s *RedisStore) Get(key string) (string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	v, err := s.db.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *RedisStore) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.db.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

func (s *RedisStore) Remove(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.db.Del(ctx, s.prefix+key).Err()
}

// IsSupported pings the server.
func (s *RedisStore) IsSupported() bool {
	if s.db == nil {
		return false
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.db.Ping(ctx).Err() == nil
}
