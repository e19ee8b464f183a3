package flags

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"sync"

	"github.com/dmitrymomot/phkit/pkg/identity"
	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/persistence"
	"github.com/dmitrymomot/phkit/pkg/transport"
)

// Endpoint is the flags path relative to the API host.
const Endpoint = "/flags/?v=2"

// IdentityFunc returns the identity flags are evaluated for.
type IdentityFunc func() (distinctID, deviceID string)

// Listener receives the full flag map after every change.
type Listener func(flags map[string]any)

// Flags reads and updates persisted feature flags.
type Flags struct {
	p        *persistence.Persistence
	retries  *transport.RetryQueue
	apiHost  string
	token    string
	identity IdentityFunc
	log      *slog.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

// Option configures Flags.
type Option func(*Flags)

// WithTransport enables Reload against apiHost.
func WithTransport(retries *transport.RetryQueue, apiHost, token string) Option {
	return func(f *Flags) {
		f.retries = retries
		f.apiHost = strings.TrimRight(apiHost, "/")
		f.token = token
	}
}

// WithIdentity sets the identity sent with Reload.
func WithIdentity(fn IdentityFunc) Option {
	return func(f *Flags) {
		if fn != nil {
			f.identity = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Flags) {
		if l != nil {
			f.log = l
		}
	}
}

// New creates Flags backed by p.
func New(p *persistence.Persistence, opts ...Option) *Flags {
	f := &Flags{
		p:         p,
		log:       slog.Default(),
		identity:  func() (string, string) { return "", "" },
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With(logger.Component("flags"))
	return f
}

// Bootstrap replaces flags and payloads with the given values. False and
// non-variant values are dropped.
func (f *Flags) Bootstrap(flags, payloads map[string]any) {
	f.set(normalize(flags), payloads)
}

// IsEnabled reports whether key is on, either true or any variant.
func (f *Flags) IsEnabled(key string) bool {
	switch v := f.All()[key].(type) {
	case bool:
		return v
	case string:
		return v != ""
	}
	return false
}

// Variant returns the variant of a multivariate flag.
func (f *Flags) Variant(key string) (string, bool) {
	v, ok := f.All()[key].(string)
	return v, ok && v != ""
}

// Payload returns the payload attached to key, nil when there is none.
func (f *Flags) Payload(key string) any {
	return asMap(f.p.Get(identity.KeyFlagPayloads))[key]
}

// All returns a copy of the current flag map.
func (f *Flags) All() map[string]any {
	return maps.Clone(asMap(f.p.Get(identity.KeyEnabledFlags)))
}

// OnFlags registers fn for flag changes. When flags are already known fn is
// called right away. The returned function unsubscribes.
func (f *Flags) OnFlags(fn Listener) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()

	if current := f.All(); len(current) > 0 {
		f.call(fn, current)
	}

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

// Reload fetches flags for the current identity and stores them.
func (f *Flags) Reload(ctx context.Context) error {
	if f.retries == nil {
		return ErrNoTransport
	}

	distinctID, deviceID := f.identity()
	body := transport.Event{"token": f.token, "distinct_id": distinctID}
	if deviceID != "" {
		body[identity.KeyDeviceID] = deviceID
	}

	future := f.retries.Send(ctx, transport.Request{
		URL:    f.apiHost + Endpoint,
		Method: http.MethodPost,
		Data:   transport.Single(body),
	})

	var resp transport.Response
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-future.Done():
		resp, _ = future.Await()
	}

	if !resp.OK() {
		f.log.Warn("failed to load feature flags",
			logger.StatusCode(resp.StatusCode), logger.Error(resp.Err))
		return fmt.Errorf("%w: %w", ErrRequestFailed, resp.Err)
	}

	flags, payloads, ok := parseResponse(resp.JSON)
	if !ok {
		return ErrInvalidResponse
	}
	f.set(flags, payloads)
	return nil
}

func (f *Flags) set(flags, payloads map[string]any) {
	if flags == nil {
		flags = map[string]any{}
	}
	if payloads == nil {
		payloads = map[string]any{}
	}
	f.p.Register(map[string]any{
		identity.KeyEnabledFlags: flags,
		identity.KeyFlagPayloads: payloads,
	})

	f.mu.Lock()
	listeners := make([]Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	for _, l := range listeners {
		f.call(l, maps.Clone(flags))
	}
}

func (f *Flags) call(fn Listener, flags map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("feature flag listener panicked", slog.Any("panic", r))
		}
	}()
	fn(flags)
}

// parseResponse understands the v2 "flags" object as well as the older
// "featureFlags"/"featureFlagPayloads" pair.
func parseResponse(v any) (map[string]any, map[string]any, bool) {
	body, ok := v.(map[string]any)
	if !ok {
		return nil, nil, false
	}

	if detailed, ok := body["flags"].(map[string]any); ok {
		flags := make(map[string]any, len(detailed))
		payloads := make(map[string]any)
		for key, raw := range detailed {
			d, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if enabled, _ := d["enabled"].(bool); !enabled {
				continue
			}
			if variant, ok := d["variant"].(string); ok && variant != "" {
				flags[key] = variant
			} else {
				flags[key] = true
			}
			if meta, ok := d["metadata"].(map[string]any); ok && meta["payload"] != nil {
				payloads[key] = meta["payload"]
			}
		}
		return flags, payloads, true
	}

	flags, ok := body["featureFlags"].(map[string]any)
	if !ok {
		return nil, nil, false
	}
	payloads, _ := body["featureFlagPayloads"].(map[string]any)
	return normalize(flags), payloads, true
}

func normalize(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case bool:
			if t {
				out[k] = true
			}
		case string:
			if t != "" {
				out[k] = t
			}
		}
	}
	return out
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
