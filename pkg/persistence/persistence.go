package persistence

import (
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"reflect"
	"sync"

	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/storage"
)

// Persistence is a mutex-protected property map mirrored into a Store.
type Persistence struct {
	mu       sync.RWMutex
	store    storage.Store
	key      string
	props    map[string]any
	disabled bool
	log      *slog.Logger
}

// Option configures a Persistence.
type Option func(*Persistence)

// WithLogger sets the logger used for storage failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Persistence) {
		if l != nil {
			p.log = l
		}
	}
}

// WithDisabled starts the instance with writes disabled.
func WithDisabled(disabled bool) Option {
	return func(p *Persistence) { p.disabled = disabled }
}

// New creates a Persistence storing its blob under key and loads it.
func New(store storage.Store, key string, opts ...Option) *Persistence {
	p := &Persistence{
		store: store,
		key:   key,
		props: make(map[string]any),
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(logger.Component("persistence"))

	p.mu.Lock()
	p.load()
	p.mu.Unlock()
	return p
}

// Key returns the storage key of the blob.
func (p *Persistence) Key() string { return p.key }

// Store returns the backing store.
func (p *Persistence) Store() storage.Store { return p.store }

// load replaces props with the stored blob. Caller holds mu.
func (p *Persistence) load() {
	if p.disabled || p.store == nil {
		return
	}
	raw, err := p.store.Get(p.key)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		p.log.Warn("failed to read persisted properties", logger.Error(err))
		return
	}

	props := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &props); err != nil {
		p.log.Warn("persisted properties are malformed, starting empty", logger.Error(err))
		return
	}
	p.props = props
}

// save writes props to the store. Caller holds mu.
func (p *Persistence) save() {
	if p.disabled || p.store == nil {
		return
	}
	data, err := json.Marshal(p.props)
	if err != nil {
		p.log.Error("failed to encode persisted properties", logger.Error(err))
		return
	}
	if err := p.store.Set(p.key, string(data)); err != nil {
		p.log.Warn("failed to write persisted properties", logger.Error(err))
	}
}

// Reload discards in-memory state and reads the blob from the store again.
func (p *Persistence) Reload() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.props = make(map[string]any)
	p.load()
}

// Register merges props into the blob and saves once if anything changed.
func (p *Persistence) Register(props map[string]any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	for k, v := range props {
		if old, ok := p.props[k]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		p.props[k] = v
		changed = true
	}
	if changed {
		p.save()
	}
	return changed
}

// RegisterOnce sets each key only when it is absent or currently equal to
// defaultValue.
func (p *Persistence) RegisterOnce(props map[string]any, defaultValue any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	for k, v := range props {
		old, ok := p.props[k]
		if ok && !reflect.DeepEqual(old, defaultValue) {
			continue
		}
		p.props[k] = v
		changed = true
	}
	if changed {
		p.save()
	}
	return changed
}

// Unregister removes keys from the blob.
func (p *Persistence) Unregister(keys ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	for _, k := range keys {
		if _, ok := p.props[k]; ok {
			delete(p.props, k)
			changed = true
		}
	}
	if changed {
		p.save()
	}
}

// Get returns the value for key, nil when absent.
func (p *Persistence) Get(key string) any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.props[key]
}

// Props returns a shallow copy of the blob.
func (p *Persistence) Props() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.props)
}

// Clear empties the blob and removes it from the store.
func (p *Persistence) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.props = make(map[string]any)
	p.remove()
}

func (p *Persistence) remove() {
	if p.store == nil {
		return
	}
	if err := p.store.Remove(p.key); err != nil {
		p.log.Warn("failed to remove persisted properties", logger.Error(err))
	}
}

// SetDisabled toggles writes. Disabling removes the stored blob while keeping
// the in-memory copy; enabling writes it back.
func (p *Persistence) SetDisabled(disabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disabled == disabled {
		return
	}
	if disabled {
		p.remove()
		p.disabled = true
		return
	}
	p.disabled = false
	p.save()
}

// IsDisabled reports whether writes are disabled.
func (p *Persistence) IsDisabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disabled
}
