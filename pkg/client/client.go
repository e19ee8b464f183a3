package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/phkit/pkg/flags"
	"github.com/dmitrymomot/phkit/pkg/identity"
	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/persistence"
	"github.com/dmitrymomot/phkit/pkg/queue"
	"github.com/dmitrymomot/phkit/pkg/session"
	"github.com/dmitrymomot/phkit/pkg/sessionprops"
	"github.com/dmitrymomot/phkit/pkg/storage"
	"github.com/dmitrymomot/phkit/pkg/transport"
	"github.com/dmitrymomot/phkit/pkg/uuidv7"
)

const (
	// Lib is reported as $lib on every event.
	Lib     = "phkit"
	Version = "0.1.0"

	// EventsPath is the analytics endpoint relative to the API host.
	EventsPath = "/e/"
)

// Client captures events for one visitor or process.
type Client struct {
	cfg         Config
	apiHost     string
	compression transport.Compression
	log         *slog.Logger
	clock       clock.Clock
	newID       uuidv7.Generator

	store        storage.Store
	redis        *redis.Client
	persistence  *persistence.Persistence
	sessions     *session.Manager
	sessionProps *sessionprops.Manager
	sender       *transport.Sender
	retries      *transport.RetryQueue
	requests     *queue.RequestQueue
	flags        *flags.Flags

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New builds a Client from cfg. It fails on a missing API key, an invalid
// compression or persistence setup, and a forbidden cookieless mode.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	o := &options{
		clock: clock.New(),
		newID: uuidv7.New,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logger.New(logger.WithDebug(cfg.Debug))
	}
	log := o.log.With(logger.Component("client"))

	compression, err := transport.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}
	if cfg.APIHost == "" {
		cfg.APIHost = DefaultConfig(cfg.APIKey).APIHost
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:         cfg,
		apiHost:     strings.TrimRight(cfg.APIHost, "/"),
		compression: compression,
		log:         log,
		clock:       o.clock,
		newID:       o.newID,
		ctx:         ctx,
		cancel:      cancel,
	}

	c.store = o.store
	if c.store == nil {
		store, rdb, err := openStore(ctx, cfg, log)
		if err != nil {
			cancel()
			return nil, err
		}
		c.store, c.redis = store, rdb
	}

	c.persistence = persistence.New(c.store, identity.CookieName(cfg.APIKey),
		persistence.WithLogger(o.log),
		persistence.WithDisabled(cfg.DisablePersistence),
	)

	sessionStore := o.sessionStore
	if sessionStore == nil {
		sessionStore = storage.NewMemoryStore()
	}
	c.sessions, err = session.New(c.persistence,
		session.WithClock(o.clock),
		session.WithLogger(o.log),
		session.WithSessionStore(sessionStore),
		session.WithIdleTimeoutSeconds(cfg.SessionIdleTimeoutSeconds),
		session.WithPersistenceName(cfg.PersistenceName),
		session.WithPersistenceMode(cfg.Persistence),
		session.WithCookielessMode(cfg.CookielessMode),
		session.WithBootstrapSessionID(o.bootstrap.SessionID),
	)
	if err != nil {
		c.closeStore()
		cancel()
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.sessionProps = sessionprops.New(c.sessions, c.persistence, o.source, o.log)

	metrics, err := transport.NewMetrics(o.meterProvider)
	if err != nil {
		c.sessionProps.Close()
		c.sessions.Close()
		c.closeStore()
		cancel()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	c.sender = transport.NewSender(
		transport.WithHTTPClient(o.httpClient),
		transport.WithSenderClock(o.clock),
		transport.WithSenderLogger(o.log),
		transport.WithMetrics(metrics),
		transport.WithErrorHook(o.onError),
		transport.WithUserAgent(Lib+"/"+Version),
	)
	c.retries = transport.NewRetryQueue(c.sender,
		transport.WithMaxRetries(cfg.MaxRetries),
		transport.WithRetryClock(o.clock),
		transport.WithRetryLogger(o.log),
	)
	c.requests = queue.New(c.send,
		queue.WithFlushInterval(time.Duration(cfg.FlushIntervalMs)*time.Millisecond),
		queue.WithClock(o.clock),
		queue.WithLogger(o.log),
	)
	c.flags = flags.New(c.persistence,
		flags.WithTransport(c.retries, c.apiHost, cfg.APIKey),
		flags.WithIdentity(func() (string, string) { return c.DistinctID(), c.DeviceID() }),
		flags.WithLogger(o.log),
	)

	c.initIdentity(o.bootstrap)
	if o.bootstrap.FeatureFlags != nil {
		c.flags.Bootstrap(o.bootstrap.FeatureFlags, o.bootstrap.FeatureFlagPayloads)
	}

	c.requests.Enable()
	log.Debug("client ready",
		logger.DistinctID(c.DistinctID()),
		slog.String("api_host", c.apiHost),
		slog.String("persistence", cfg.Persistence))
	return c, nil
}

func (c *Client) initIdentity(b Bootstrap) {
	if b.DistinctID != "" {
		state := identity.UserStateAnonymous
		if b.IsIdentifiedID {
			state = identity.UserStateIdentified
		}
		props := map[string]any{
			identity.KeyDistinctID: b.DistinctID,
			identity.KeyUserState:  state,
		}
		if !b.IsIdentifiedID {
			props[identity.KeyDeviceID] = b.DistinctID
		}
		c.persistence.Register(props)
	}

	id := c.newID()
	c.persistence.RegisterOnce(map[string]any{
		identity.KeyDistinctID: id,
		identity.KeyDeviceID:   id,
	}, "")
	c.persistence.RegisterOnce(map[string]any{
		identity.KeyUserState: identity.UserStateAnonymous,
	}, "")
}

// send routes flushed batches: beacons fire and forget, everything else
// goes through the retry queue.
func (c *Client) send(req transport.Request) {
	if req.Transport == transport.ModeBeacon {
		c.sender.Beacon(req)
		return
	}
	c.retries.Send(c.ctx, req)
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// DistinctID returns the current distinct id.
func (c *Client) DistinctID() string {
	id, _ := c.persistence.Get(identity.KeyDistinctID).(string)
	return id
}

// DeviceID returns the id of this installation, kept across identify calls.
func (c *Client) DeviceID() string {
	id, _ := c.persistence.Get(identity.KeyDeviceID).(string)
	return id
}

// IsIdentified reports whether Identify was called for the current user.
func (c *Client) IsIdentified() bool {
	return c.persistence.Get(identity.KeyUserState) == identity.UserStateIdentified
}

// SessionID returns the current session id without extending the session.
func (c *Client) SessionID() string {
	return c.sessions.CheckAndGetSessionAndWindowID(true, c.clock.Now().UnixMilli()).SessionID
}

// Register stores super properties sent with every event.
func (c *Client) Register(props map[string]any) {
	c.persistence.Register(props)
}

// Unregister removes super properties.
func (c *Client) Unregister(keys ...string) {
	c.persistence.Unregister(keys...)
}

func (c *Client) Flags() *flags.Flags { return c.flags }

// Sessions exposes the session manager for listeners.
func (c *Client) Sessions() *session.Manager { return c.sessions }

// Metrics returns delivery counters.
func (c *Client) Metrics() transport.MetricsSnapshot {
	return c.sender.Metrics().Snapshot()
}

// Unload flushes queued events with beacons and persists session state. It
// does not wait for the network.
func (c *Client) Unload() {
	c.requests.Unload()
	c.retries.Unload()
	c.sessions.Unload()
}

// Close unloads pending work, waits for in-flight beacons and releases
// every component. The client rejects captures afterwards.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.requests.Close()
		c.retries.Unload()
		c.retries.Close()
		c.sender.Wait()
		c.sessionProps.Close()
		c.sessions.Close()
		c.cancel()
		err = c.closeStore()
	})
	return err
}

func (c *Client) closeStore() error {
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
