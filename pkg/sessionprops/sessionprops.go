// Package sessionprops records where each session started (referrer, landing
// URL, UTM parameters) and exposes it as $client_session_initial_* event
// properties for the rest of that session.
package sessionprops

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dmitrymomot/phkit/pkg/identity"
	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/persistence"
	"github.com/dmitrymomot/phkit/pkg/session"
)

// DirectReferrer is recorded when a session starts without a referrer.
const DirectReferrer = "$direct"

// UTMParams are the campaign parameters copied from the landing URL.
var UTMParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_content", "utm_term"}

// Source describes the context a session started in.
type Source struct {
	ReferringDomain string            `json:"r,omitempty"`
	CurrentURL      string            `json:"u,omitempty"`
	Pathname        string            `json:"p,omitempty"`
	UTM             map[string]string `json:"utm,omitempty"`
}

// SourceFunc returns the context of the current page or request.
type SourceFunc func() Source

// SourceFromURL builds a Source from a page URL and its referrer.
func SourceFromURL(pageURL, referrer string) Source {
	src := Source{ReferringDomain: DirectReferrer, CurrentURL: pageURL}

	if ref, err := url.Parse(referrer); err == nil && ref.Host != "" {
		src.ReferringDomain = ref.Host
	}

	u, err := url.Parse(pageURL)
	if err != nil {
		return src
	}
	src.Pathname = u.Path
	if src.Pathname == "" {
		src.Pathname = "/"
	}

	q := u.Query()
	for _, name := range UTMParams {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			if src.UTM == nil {
				src.UTM = make(map[string]string, len(UTMParams))
			}
			src.UTM[name] = v
		}
	}
	return src
}

type stored struct {
	SessionID string `json:"sessionId"`
	Props     Source `json:"props"`
}

// Manager keeps the initial session source in persistence.
type Manager struct {
	persistence *persistence.Persistence
	source      SourceFunc
	log         *slog.Logger
	unsubscribe func()
}

// New subscribes to sessions and stores source() whenever the session id
// differs from the stored one.
func New(sessions *session.Manager, p *persistence.Persistence, source SourceFunc, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if source == nil {
		source = func() Source { return Source{} }
	}
	m := &Manager{
		persistence: p,
		source:      source,
		log:         log.With(logger.Component("sessionprops")),
	}
	m.unsubscribe = sessions.OnSessionID(func(sessionID, _ string, _ *session.ChangeReason) {
		m.onSessionID(sessionID)
	})
	return m
}

func (m *Manager) load() (stored, bool) {
	v := m.persistence.Get(identity.KeyClientSessionProps)
	if v == nil {
		return stored{}, false
	}
	if s, ok := v.(stored); ok {
		return s, true
	}

	// Values reloaded from storage are generic JSON.
	data, err := json.Marshal(v)
	if err != nil {
		return stored{}, false
	}
	var s stored
	if err := json.Unmarshal(data, &s); err != nil {
		m.log.Warn("stored session props are malformed", logger.Error(err))
		return stored{}, false
	}
	return s, true
}

func (m *Manager) onSessionID(sessionID string) {
	if s, ok := m.load(); ok && s.SessionID == sessionID {
		return
	}
	m.persistence.Register(map[string]any{
		identity.KeyClientSessionProps: stored{SessionID: sessionID, Props: m.source()},
	})
}

// SessionID returns the session the stored props belong to.
func (m *Manager) SessionID() string {
	s, _ := m.load()
	return s.SessionID
}

// Properties returns the initial props of the stored session as event
// properties. Empty when nothing was recorded yet.
func (m *Manager) Properties() map[string]any {
	s, ok := m.load()
	if !ok {
		return map[string]any{}
	}

	props := map[string]any{}
	if s.Props.ReferringDomain != "" {
		props["$client_session_initial_referring_host"] = s.Props.ReferringDomain
	}
	if s.Props.CurrentURL != "" {
		props["$client_session_initial_current_url"] = s.Props.CurrentURL
	}
	if s.Props.Pathname != "" {
		props["$client_session_initial_pathname"] = s.Props.Pathname
	}
	for k, v := range s.Props.UTM {
		props["$client_session_initial_"+k] = v
	}
	return props
}

// Close stops listening to session rotations.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}
