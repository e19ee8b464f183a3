package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/dmitrymomot/phkit/pkg/clamp"
	"github.com/dmitrymomot/phkit/pkg/identity"
	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/persistence"
	"github.com/dmitrymomot/phkit/pkg/storage"
	"github.com/dmitrymomot/phkit/pkg/uuidv7"
)

// ChangeReason tells listeners why the session or window changed.
// All fields false means only the window id was regenerated.
type ChangeReason struct {
	NoSessionID              bool `json:"noSessionId"`
	ActivityTimeout          bool `json:"activityTimeout"`
	SessionPastMaximumLength bool `json:"sessionPastMaximumLength"`
}

// Result is the outcome of CheckAndGetSessionAndWindowID.
type Result struct {
	SessionID      string
	WindowID       string
	SessionStartMs int64
	// LastActivityMs is the activity timestamp stored before this call.
	LastActivityMs int64
	// ChangeReason is nil when neither id changed.
	ChangeReason *ChangeReason
}

// Handler observes session rotations. reason is nil on the replay made at
// registration time.
type Handler func(sessionID, windowID string, reason *ChangeReason)

// Manager is the single authority over session and window ids.
type Manager struct {
	config       Config
	persistence  *persistence.Persistence
	sessionStore storage.Store
	clock        clock.Clock
	log          *slog.Logger
	newSessionID uuidv7.Generator
	newWindowID  uuidv7.Generator

	idleTimeout      time.Duration
	windowIDKey      string
	primaryWindowKey string

	mu       sync.Mutex
	windowID string
	watchdog *clock.Timer
	closed   bool

	hmu          sync.Mutex
	nextHandler  int
	handlers     []registered[Handler]
	idleHandlers []registered[func(idleSessionID string)]
}

type registered[F any] struct {
	id int
	fn F
}

// New creates a Manager. It fails when p is nil or cookieless mode is
// "always"; both are configuration errors.
func New(p *persistence.Persistence, opts ...Option) (*Manager, error) {
	if p == nil {
		return nil, ErrNoPersistence
	}

	m := &Manager{
		config:       DefaultConfig(),
		persistence:  p,
		clock:        clock.New(),
		log:          slog.Default(),
		newSessionID: uuidv7.New,
		newWindowID:  uuidv7.New,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.config.CookielessMode == CookielessAlways {
		return nil, ErrCookielessMode
	}

	m.log = m.log.With(logger.Component("session"))

	seconds := clamp.Range(m.config.IdleTimeoutSeconds,
		MinIdleTimeoutSeconds, MaxIdleTimeoutSeconds,
		"session_idle_timeout_seconds", DefaultIdleTimeoutSeconds, m.log)
	m.idleTimeout = time.Duration(seconds) * time.Second

	name := m.config.PersistenceName
	if name == "" {
		name = "posthog"
	}
	m.windowIDKey = "ph_" + name + "_window_id"
	m.primaryWindowKey = "ph_" + name + "_primary_window_exists"

	m.detectDuplicateWindow()

	if id := m.config.BootstrapSessionID; id != "" {
		if startMs, err := uuidv7.TimestampMs(id); err != nil {
			m.log.Error("invalid bootstrap session id, generating a new one",
				logger.SessionID(id), logger.Error(err))
		} else {
			m.saveTuple(identity.SessionTuple{
				LastActivityMs: m.nowMs(),
				SessionID:      id,
				StartMs:        startMs,
			})
		}
	}

	return m, nil
}

// SessionTimeout returns the clamped idle timeout.
func (m *Manager) SessionTimeout() time.Duration { return m.idleTimeout }

// SessionTimeoutMs returns the clamped idle timeout in milliseconds.
func (m *Manager) SessionTimeoutMs() int64 { return m.idleTimeout.Milliseconds() }

// detectDuplicateWindow reuses the inherited window id after a clean reload
// and discards it when the primary-window flag survived, which means the
// previous owner never unloaded and this is a duplicated tab.
func (m *Manager) detectDuplicateWindow() {
	if !m.canUseSessionStore() {
		return
	}

	lastWindowID := m.readSessionValue(m.windowIDKey)
	primaryExists := m.readSessionValue(m.primaryWindowKey) != ""

	if lastWindowID != "" && !primaryExists {
		m.windowID = lastWindowID
	} else if err := m.sessionStore.Remove(m.windowIDKey); err != nil {
		m.log.Warn("failed to drop inherited window id", logger.Error(err))
	}

	m.writeSessionValue(m.primaryWindowKey, true)
}

func (m *Manager) canUseSessionStore() bool {
	return m.sessionStore != nil &&
		m.config.PersistenceMode != PersistenceMemory &&
		!m.persistence.IsDisabled() &&
		m.sessionStore.IsSupported()
}

// readSessionValue returns the JSON-decoded string form of key, "" when absent.
func (m *Manager) readSessionValue(key string) string {
	raw, err := m.sessionStore.Get(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Warn("failed to read session store", slog.String("key", key), logger.Error(err))
		}
		return ""
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return ""
	case nil:
		return ""
	}
	return raw
}

func (m *Manager) writeSessionValue(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := m.sessionStore.Set(key, string(data)); err != nil {
		m.log.Warn("failed to write session store", slog.String("key", key), logger.Error(err))
	}
}

func (m *Manager) nowMs() int64 {
	return m.clock.Now().UnixMilli()
}

func (m *Manager) loadTuple() identity.SessionTuple {
	tuple, _ := identity.DecodeSessionTuple(m.persistence.Get(identity.KeySessionID))
	return tuple
}

func (m *Manager) saveTuple(t identity.SessionTuple) {
	m.persistence.Register(map[string]any{identity.KeySessionID: t})
}

func (m *Manager) setWindowID(id string) {
	if id == m.windowID {
		return
	}
	m.windowID = id
	if m.canUseSessionStore() {
		m.writeSessionValue(m.windowIDKey, id)
	}
}

func (m *Manager) getWindowID() string {
	if m.windowID != "" {
		return m.windowID
	}
	if m.canUseSessionStore() {
		return m.readSessionValue(m.windowIDKey)
	}
	return ""
}

// CheckAndGetSessionAndWindowID returns the session and window for an event
// at timestamp (unix ms; zero or negative means now), rotating them when the
// session is missing, idle for longer than the timeout, or older than
// MaxSessionLength. Read-only calls never extend the idle clock and never
// rotate on idleness.
func (m *Manager) CheckAndGetSessionAndWindowID(readOnly bool, timestamp int64) Result {
	if timestamp <= 0 {
		timestamp = m.nowMs()
	}

	m.mu.Lock()

	stored := m.loadTuple()
	sessionID, startMs := stored.SessionID, stored.StartMs
	windowID := m.getWindowID()

	reason := ChangeReason{
		NoSessionID:              sessionID == "",
		ActivityTimeout:          !readOnly && absMs(timestamp-stored.LastActivityMs) > m.idleTimeout.Milliseconds(),
		SessionPastMaximumLength: startMs > 0 && absMs(timestamp-startMs) > MaxSessionLength.Milliseconds(),
	}

	changed := false
	if reason.NoSessionID || reason.ActivityTimeout || reason.SessionPastMaximumLength {
		sessionID = m.newSessionID()
		windowID = m.newWindowID()
		startMs = timestamp
		changed = true
		m.log.Debug("new session id generated",
			logger.SessionID(sessionID), logger.WindowID(windowID),
			slog.Bool("no_session_id", reason.NoSessionID),
			slog.Bool("activity_timeout", reason.ActivityTimeout),
			slog.Bool("past_max_length", reason.SessionPastMaximumLength))
	} else if windowID == "" {
		windowID = m.newWindowID()
		changed = true
	}

	activityMs := stored.LastActivityMs
	if stored.LastActivityMs == 0 || !readOnly || reason.SessionPastMaximumLength {
		activityMs = timestamp
	}
	if startMs == 0 {
		startMs = m.nowMs()
	}

	m.setWindowID(windowID)
	next := identity.SessionTuple{LastActivityMs: activityMs, SessionID: sessionID, StartMs: startMs}
	if next != stored {
		m.saveTuple(next)
	}

	if !readOnly {
		m.resetIdleTimer()
	}
	m.mu.Unlock()

	res := Result{
		SessionID:      sessionID,
		WindowID:       windowID,
		SessionStartMs: startMs,
		LastActivityMs: stored.LastActivityMs,
	}
	if changed {
		res.ChangeReason = &reason
		m.notify(sessionID, windowID, &reason)
	}
	return res
}

// ResetSessionID clears the session; the next check creates a new one.
func (m *Manager) ResetSessionID() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Manager) resetLocked() {
	m.saveTuple(identity.SessionTuple{})
}

// resetIdleTimer re-arms the watchdog. Caller holds mu.
func (m *Manager) resetIdleTimer() {
	if m.closed {
		return
	}
	if m.watchdog != nil {
		m.watchdog.Stop()
	}
	m.watchdog = m.clock.AfterFunc(m.idleTimeout*11/10, m.enforceIdleTimeout)
}

// enforceIdleTimeout covers the case where no further checks arrived after
// the session went idle.
func (m *Manager) enforceIdleTimeout() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	stored := m.loadTuple()
	if stored.SessionID == "" || absMs(m.nowMs()-stored.LastActivityMs) <= m.idleTimeout.Milliseconds() {
		m.mu.Unlock()
		return
	}
	m.resetLocked()
	m.mu.Unlock()

	m.log.Debug("session went idle, forcing reset", logger.SessionID(stored.SessionID))

	m.hmu.Lock()
	handlers := make([]registered[func(string)], len(m.idleHandlers))
	copy(handlers, m.idleHandlers)
	m.hmu.Unlock()

	for _, h := range handlers {
		m.safeCall(func() { h.fn(stored.SessionID) })
	}
}

// OnSessionID registers h for session rotations. When a session already
// exists h is called immediately with the current ids and a nil reason.
func (m *Manager) OnSessionID(h Handler) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}

	m.hmu.Lock()
	m.nextHandler++
	id := m.nextHandler
	m.handlers = append(m.handlers, registered[Handler]{id: id, fn: h})
	m.hmu.Unlock()

	m.mu.Lock()
	sessionID, windowID := m.loadTuple().SessionID, m.getWindowID()
	m.mu.Unlock()

	if sessionID != "" {
		m.safeCall(func() { h(sessionID, windowID, nil) })
	}

	return func() {
		m.hmu.Lock()
		defer m.hmu.Unlock()
		m.handlers = removeRegistered(m.handlers, id)
	}
}

// OnForcedIdleReset registers fn for resets made by the idle watchdog.
func (m *Manager) OnForcedIdleReset(fn func(idleSessionID string)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	m.hmu.Lock()
	defer m.hmu.Unlock()
	m.nextHandler++
	id := m.nextHandler
	m.idleHandlers = append(m.idleHandlers, registered[func(string)]{id: id, fn: fn})

	return func() {
		m.hmu.Lock()
		defer m.hmu.Unlock()
		m.idleHandlers = removeRegistered(m.idleHandlers, id)
	}
}

func (m *Manager) notify(sessionID, windowID string, reason *ChangeReason) {
	m.hmu.Lock()
	handlers := make([]registered[Handler], len(m.handlers))
	copy(handlers, m.handlers)
	m.hmu.Unlock()

	for _, h := range handlers {
		m.safeCall(func() { h.fn(sessionID, windowID, reason) })
	}
}

func (m *Manager) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("session listener panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// Unload marks a clean shutdown of this window, so the next manager using
// the same tab-scoped store reuses the window id.
func (m *Manager) Unload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.canUseSessionStore() {
		return
	}
	if err := m.sessionStore.Remove(m.primaryWindowKey); err != nil {
		m.log.Warn("failed to clear primary window flag", logger.Error(err))
	}
}

// Close stops the idle watchdog, unloads and drops all listeners.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	m.mu.Unlock()

	m.Unload()

	m.hmu.Lock()
	m.handlers = nil
	m.idleHandlers = nil
	m.hmu.Unlock()
}

func removeRegistered[F any](list []registered[F], id int) []registered[F] {
	out := list[:0:0]
	for _, r := range list {
		if r.id != id {
			out = append(out, r)
		}
	}
	return out
}

func absMs(d int64) int64 {
	if d < 0 {
		return -d
	}
	return d
}
