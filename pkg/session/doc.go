// Package session owns the session and window identity of an SDK instance.
//
// A Manager decides, on every capture, which session and window an event
// belongs to. Sessions rotate after an idle timeout (clamped to 60s..10h,
// 30 minutes by default) and unconditionally after 24 hours. The session
// record lives in the persisted property blob under "$sesid" as
// [lastActivityMs, sessionId, sessionStartMs]; the window id lives in a
// tab-scoped store so that a reloaded tab keeps its window while a
// duplicated tab gets a new one.
//
// Basic usage:
//
//	p := persistence.New(storage.NewFileStore(path), identity.CookieName(apiKey))
//	m, err := session.New(p, session.WithSessionStore(storage.NewMemoryStore()))
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//
//	unsubscribe := m.OnSessionID(func(sessionID, windowID string, reason *session.ChangeReason) {
//		log.Printf("session %s window %s", sessionID, windowID)
//	})
//	defer unsubscribe()
//
//	res := m.CheckAndGetSessionAndWindowID(false, 0)
//	_ = res.SessionID
//
// Read-only checks (passive events) never extend the idle clock. A watchdog
// timer re-checks idleness after 1.1 times the timeout and resets a session
// that went idle without further calls; OnForcedIdleReset observes that.
//
// The read-modify-write of the session record is serialised by a mutex.
// Listeners run synchronously after the lock is released, in registration
// order, and a panicking listener is recovered and logged.
package session
