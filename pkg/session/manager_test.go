package session_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/phkit/pkg/identity"
	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/persistence"
	"github.com/dmitrymomot/phkit/pkg/session"
	"github.com/dmitrymomot/phkit/pkg/storage"
	"github.com/dmitrymomot/phkit/pkg/uuidv7"
)

// t0 is an arbitrary starting point in unix ms, small enough for the mock
// clock to reach with Add.
const t0 int64 = 1_000_000_000

const idleMs = int64(session.DefaultIdleTimeoutSeconds * 1000)

func sequence(prefix string) uuidv7.Generator {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s-%d", prefix, n.Add(1)) }
}

type fixture struct {
	clock    *clock.Mock
	store    *storage.MemoryStore
	tabStore *storage.MemoryStore
	persist  *persistence.Persistence
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mock := clock.NewMock()
	mock.Add(time.Duration(t0) * time.Millisecond)

	store := storage.NewMemoryStore()
	return &fixture{
		clock:    mock,
		store:    store,
		tabStore: storage.NewMemoryStore(),
		persist:  persistence.New(store, "ph_test_posthog", persistence.WithLogger(logger.Nop())),
	}
}

func (f *fixture) manager(t *testing.T, opts ...session.Option) *session.Manager {
	t.Helper()
	base := []session.Option{
		session.WithClock(f.clock),
		session.WithLogger(logger.Nop()),
		session.WithSessionStore(f.tabStore),
		session.WithPersistenceName("test"),
		session.WithSessionIDGenerator(sequence("session")),
		session.WithWindowIDGenerator(sequence("window")),
	}
	m, err := session.New(f.persist, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func (f *fixture) storedTuple(t *testing.T) identity.SessionTuple {
	t.Helper()
	tuple, ok := identity.DecodeSessionTuple(f.persist.Get(identity.KeySessionID))
	require.True(t, ok)
	return tuple
}

func TestNew_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	_, err := session.New(nil)
	assert.ErrorIs(t, err, session.ErrNoPersistence)

	p := persistence.New(storage.NewMemoryStore(), "k")
	_, err = session.New(p, session.WithCookielessMode(session.CookielessAlways))
	assert.ErrorIs(t, err, session.ErrCookielessMode)

	m, err := session.New(p, session.WithCookielessMode("on_reject"))
	require.NoError(t, err)
	m.Close()
}

func TestManager_SessionTimeoutClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, 30 * time.Minute},
		{10, time.Minute},
		{120, 2 * time.Minute},
		{100_000, 10 * time.Hour},
	}
	for _, tt := range tests {
		f := newFixture(t)
		m := f.manager(t, session.WithIdleTimeoutSeconds(tt.seconds))
		assert.Equal(t, tt.want, m.SessionTimeout(), "seconds=%d", tt.seconds)
		assert.Equal(t, tt.want.Milliseconds(), m.SessionTimeoutMs())
	}
}

func TestManager_FirstCallCreatesSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	var calls []string
	m.OnSessionID(func(sessionID, windowID string, reason *session.ChangeReason) {
		require.NotNil(t, reason)
		assert.True(t, reason.NoSessionID)
		calls = append(calls, sessionID+"/"+windowID)
	})

	res := m.CheckAndGetSessionAndWindowID(false, t0)
	assert.Equal(t, "session-1", res.SessionID)
	assert.Equal(t, "window-1", res.WindowID)
	assert.Equal(t, t0, res.SessionStartMs)
	assert.Zero(t, res.LastActivityMs)
	require.NotNil(t, res.ChangeReason)
	assert.Equal(t, session.ChangeReason{NoSessionID: true, ActivityTimeout: true}, *res.ChangeReason,
		"an empty store has no recorded activity, so the idle check trips too")
	assert.Equal(t, []string{"session-1/window-1"}, calls)

	assert.Equal(t, identity.SessionTuple{LastActivityMs: t0, SessionID: "session-1", StartMs: t0}, f.storedTuple(t))

	again := m.CheckAndGetSessionAndWindowID(false, t0+1000)
	assert.Equal(t, "session-1", again.SessionID)
	assert.Nil(t, again.ChangeReason)
	assert.Equal(t, t0, again.LastActivityMs)
	assert.Len(t, calls, 1, "no notification without a change")
}

func TestManager_ZeroTimestampUsesClock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	res := m.CheckAndGetSessionAndWindowID(false, 0)
	assert.Equal(t, t0, res.SessionStartMs)
	assert.Equal(t, t0, f.storedTuple(t).LastActivityMs)
}

func TestManager_IdleRotation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	first := m.CheckAndGetSessionAndWindowID(false, t0)
	next := m.CheckAndGetSessionAndWindowID(false, t0+idleMs+1)

	assert.NotEqual(t, first.SessionID, next.SessionID)
	assert.NotEqual(t, first.WindowID, next.WindowID)
	require.NotNil(t, next.ChangeReason)
	assert.True(t, next.ChangeReason.ActivityTimeout)
	assert.False(t, next.ChangeReason.NoSessionID)
	assert.Equal(t, t0+idleMs+1, next.SessionStartMs)
}

func TestManager_IdleBoundaryIsExclusive(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	first := m.CheckAndGetSessionAndWindowID(false, t0)
	same := m.CheckAndGetSessionAndWindowID(false, t0+idleMs)
	assert.Equal(t, first.SessionID, same.SessionID)
}

func TestManager_ReadOnlyNeverExtendsExpiry(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	first := m.CheckAndGetSessionAndWindowID(false, t0)

	ts := t0
	for range 10 {
		ts += idleMs - 1
		res := m.CheckAndGetSessionAndWindowID(true, ts)
		assert.Equal(t, first.SessionID, res.SessionID)
		assert.Nil(t, res.ChangeReason)
		assert.Equal(t, t0, res.LastActivityMs)
	}
	assert.Equal(t, t0, f.storedTuple(t).LastActivityMs)

	rotated := m.CheckAndGetSessionAndWindowID(false, ts)
	assert.NotEqual(t, first.SessionID, rotated.SessionID)
	assert.True(t, rotated.ChangeReason.ActivityTimeout)
}

func TestManager_ReadOnlyOnNewSessionRecordsActivity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	res := m.CheckAndGetSessionAndWindowID(true, t0+5)
	require.NotNil(t, res.ChangeReason)
	assert.Equal(t, session.ChangeReason{NoSessionID: true}, *res.ChangeReason)
	assert.Equal(t, t0+5, f.storedTuple(t).LastActivityMs)
}

func TestManager_AbsoluteCeiling(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	first := m.CheckAndGetSessionAndWindowID(false, t0)
	step := (10 * time.Minute).Milliseconds()
	limit := session.MaxSessionLength.Milliseconds()

	ts := t0
	for ts+step-t0 <= limit {
		ts += step
		res := m.CheckAndGetSessionAndWindowID(false, ts)
		require.Equal(t, first.SessionID, res.SessionID, "rotated early at +%dms", ts-t0)
	}

	res := m.CheckAndGetSessionAndWindowID(false, ts+step)
	assert.NotEqual(t, first.SessionID, res.SessionID)
	require.NotNil(t, res.ChangeReason)
	assert.True(t, res.ChangeReason.SessionPastMaximumLength)
	assert.False(t, res.ChangeReason.ActivityTimeout)
	assert.Equal(t, ts+step, res.SessionStartMs)
}

func TestManager_AbsoluteCeilingAppliesToReadOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	first := m.CheckAndGetSessionAndWindowID(false, t0)
	late := t0 + session.MaxSessionLength.Milliseconds() + 1

	res := m.CheckAndGetSessionAndWindowID(true, late)
	assert.NotEqual(t, first.SessionID, res.SessionID)
	assert.True(t, res.ChangeReason.SessionPastMaximumLength)
	assert.Equal(t, late, f.storedTuple(t).LastActivityMs)
}

func TestManager_ListenerReplay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	var got []string
	m.OnSessionID(func(sessionID, windowID string, reason *session.ChangeReason) {
		got = append(got, "early:"+sessionID)
	})
	assert.Empty(t, got, "no replay before a session exists")

	res := m.CheckAndGetSessionAndWindowID(false, t0)

	var replayed *session.ChangeReason
	called := false
	m.OnSessionID(func(sessionID, windowID string, reason *session.ChangeReason) {
		called = true
		replayed = reason
		assert.Equal(t, res.SessionID, sessionID)
		assert.Equal(t, res.WindowID, windowID)
	})
	assert.True(t, called, "late subscriber is called synchronously")
	assert.Nil(t, replayed)
	assert.Equal(t, []string{"early:" + res.SessionID}, got)
}

func TestManager_ListenerReplayFromPersistedSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.persist.Register(map[string]any{
		identity.KeySessionID: []any{float64(t0), "persisted", float64(t0)},
	})
	m := f.manager(t)

	var sessionID string
	m.OnSessionID(func(id, _ string, _ *session.ChangeReason) { sessionID = id })
	assert.Equal(t, "persisted", sessionID)
}

func TestManager_Unsubscribe(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	calls := 0
	unsubscribe := m.OnSessionID(func(string, string, *session.ChangeReason) { calls++ })
	m.CheckAndGetSessionAndWindowID(false, t0)
	unsubscribe()
	m.CheckAndGetSessionAndWindowID(false, t0+idleMs+1)

	assert.Equal(t, 1, calls)
}

func TestManager_ListenerPanicIsContained(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	m.OnSessionID(func(string, string, *session.ChangeReason) { panic("boom") })
	second := false
	m.OnSessionID(func(string, string, *session.ChangeReason) { second = true })

	assert.NotPanics(t, func() { m.CheckAndGetSessionAndWindowID(false, t0) })
	assert.True(t, second)
}

func TestManager_ResetSessionID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	first := m.CheckAndGetSessionAndWindowID(false, t0)
	m.ResetSessionID()

	res := m.CheckAndGetSessionAndWindowID(false, t0+1)
	assert.NotEqual(t, first.SessionID, res.SessionID)
	require.NotNil(t, res.ChangeReason)
	assert.True(t, res.ChangeReason.NoSessionID)
}

func TestManager_MalformedPersistedSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.persist.Register(map[string]any{identity.KeySessionID: "garbage"})
	m := f.manager(t)

	res := m.CheckAndGetSessionAndWindowID(false, t0)
	assert.Equal(t, "session-1", res.SessionID)
	assert.True(t, res.ChangeReason.NoSessionID)
}

func TestManager_LegacyTwoElementSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.persist.Register(map[string]any{identity.KeySessionID: []any{float64(t0), "legacy"}})
	m := f.manager(t)

	res := m.CheckAndGetSessionAndWindowID(false, t0+1000)
	assert.Equal(t, "legacy", res.SessionID)
	assert.Equal(t, t0, res.SessionStartMs)
	require.NotNil(t, res.ChangeReason, "window id is generated for the inherited session")
	assert.Equal(t, session.ChangeReason{}, *res.ChangeReason)
}

func TestManager_WindowDuplication(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	original := f.manager(t)
	inherited := original.CheckAndGetSessionAndWindowID(false, t0).WindowID

	// A duplicated tab copies tab storage while the original is still open.
	dup := *f
	dup.tabStore = f.tabStore.Clone()
	duplicate := dup.manager(t, session.WithWindowIDGenerator(sequence("dup-window")))
	res := duplicate.CheckAndGetSessionAndWindowID(false, t0+1)
	assert.NotEqual(t, inherited, res.WindowID)
	assert.Equal(t, "dup-window-1", res.WindowID)

	// A reload happens after the original unloaded.
	original.Unload()
	reload := *f
	reload.tabStore = f.tabStore.Clone()
	reloaded := reload.manager(t, session.WithWindowIDGenerator(sequence("reload-window")))
	res = reloaded.CheckAndGetSessionAndWindowID(false, t0+2)
	assert.Equal(t, inherited, res.WindowID)
}

func TestManager_PrimaryWindowFlag(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	raw, err := f.tabStore.Get("ph_test_primary_window_exists")
	require.NoError(t, err)
	assert.Equal(t, "true", raw)

	m.CheckAndGetSessionAndWindowID(false, t0)
	raw, err = f.tabStore.Get("ph_test_window_id")
	require.NoError(t, err)
	assert.Equal(t, `"window-1"`, raw)

	m.Unload()
	_, err = f.tabStore.Get("ph_test_primary_window_exists")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManager_MemoryModeSkipsTabStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t, session.WithPersistenceMode(session.PersistenceMemory))

	m.CheckAndGetSessionAndWindowID(false, t0)
	assert.Zero(t, f.tabStore.Len())
}

func TestManager_Bootstrap(t *testing.T) {
	t.Parallel()

	t.Run("valid v7 id", func(t *testing.T) {
		t.Parallel()
		p := persistence.New(storage.NewMemoryStore(), "k")
		id := uuidv7.New()
		startMs, err := uuidv7.TimestampMs(id)
		require.NoError(t, err)

		m, err := session.New(p, session.WithBootstrapSessionID(id), session.WithLogger(logger.Nop()))
		require.NoError(t, err)
		defer m.Close()

		res := m.CheckAndGetSessionAndWindowID(false, 0)
		assert.Equal(t, id, res.SessionID)
		assert.Equal(t, startMs, res.SessionStartMs)
		require.NotNil(t, res.ChangeReason, "only the window id is new")
		assert.False(t, res.ChangeReason.NoSessionID)
	})

	t.Run("invalid id falls back to generation", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		m := f.manager(t, session.WithBootstrapSessionID("not-a-uuid"))

		res := m.CheckAndGetSessionAndWindowID(false, t0)
		assert.Equal(t, "session-1", res.SessionID)
		assert.True(t, res.ChangeReason.NoSessionID)
	})
}

func TestManager_IdleWatchdog(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	var idle []string
	m.OnForcedIdleReset(func(id string) { idle = append(idle, id) })

	first := m.CheckAndGetSessionAndWindowID(false, 0)

	f.clock.Add(m.SessionTimeout())
	assert.Empty(t, idle, "watchdog waits for 1.1x the timeout")

	f.clock.Add(m.SessionTimeout() / 10)
	assert.Equal(t, []string{first.SessionID}, idle)

	res := m.CheckAndGetSessionAndWindowID(true, 0)
	assert.NotEqual(t, first.SessionID, res.SessionID)
	assert.True(t, res.ChangeReason.NoSessionID)
}

func TestManager_WatchdogRearmedByActivity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	fired := 0
	m.OnForcedIdleReset(func(string) { fired++ })

	first := m.CheckAndGetSessionAndWindowID(false, 0)
	for range 5 {
		f.clock.Add(m.SessionTimeout() / 2)
		res := m.CheckAndGetSessionAndWindowID(false, 0)
		require.Equal(t, first.SessionID, res.SessionID)
	}
	assert.Zero(t, fired)
}

func TestManager_CloseStopsWatchdog(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	fired := false
	m.OnForcedIdleReset(func(string) { fired = true })
	m.CheckAndGetSessionAndWindowID(false, 0)
	m.Close()

	f.clock.Add(2 * m.SessionTimeout())
	assert.False(t, fired)
}

func TestManager_ConcurrentChecksRotateOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	m := f.manager(t)

	var rotations atomic.Int32
	m.OnSessionID(func(string, string, *session.ChangeReason) { rotations.Add(1) })

	var wg sync.WaitGroup
	ids := make([]string, 32)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i] = m.CheckAndGetSessionAndWindowID(false, t0).SessionID
		}()
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, int32(1), rotations.Load())
}
