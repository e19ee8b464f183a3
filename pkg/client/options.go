package client

import (
	"log/slog"
	"net/http"

	"github.com/facebookgo/clock"
	"go.opentelemetry.io/otel/metric"

	"github.com/dmitrymomot/phkit/pkg/sessionprops"
	"github.com/dmitrymomot/phkit/pkg/storage"
	"github.com/dmitrymomot/phkit/pkg/transport"
	"github.com/dmitrymomot/phkit/pkg/uuidv7"
)

// Bootstrap seeds identity and flags, usually from server-rendered data.
type Bootstrap struct {
	DistinctID          string
	IsIdentifiedID      bool
	SessionID           string
	FeatureFlags        map[string]any
	FeatureFlagPayloads map[string]any
}

type options struct {
	log           *slog.Logger
	clock         clock.Clock
	store         storage.Store
	sessionStore  storage.Store
	httpClient    *http.Client
	meterProvider metric.MeterProvider
	source        sessionprops.SourceFunc
	bootstrap     Bootstrap
	newID         uuidv7.Generator
	onError       transport.ErrorHook
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock drives timers and timestamps; tests pass a mock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithStore replaces the store selected by Config.Persistence.
func WithStore(s storage.Store) Option {
	return func(o *options) {
		if s != nil {
			o.store = s
		}
	}
}

// WithSessionStore sets the tab-scoped store used for window ids.
func WithSessionStore(s storage.Store) Option {
	return func(o *options) {
		if s != nil {
			o.sessionStore = s
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithMeterProvider exports delivery metrics through provider.
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = p }
}

// WithSource tells where sessions start, for session props.
func WithSource(fn sessionprops.SourceFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.source = fn
		}
	}
}

func WithBootstrap(b Bootstrap) Option {
	return func(o *options) { o.bootstrap = b }
}

// WithIDGenerator sets the generator for distinct, device and event ids.
func WithIDGenerator(gen uuidv7.Generator) Option {
	return func(o *options) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithErrorHook observes every failed delivery attempt.
func WithErrorHook(h transport.ErrorHook) Option {
	return func(o *options) { o.onError = h }
}
