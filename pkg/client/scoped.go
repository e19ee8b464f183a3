package client

import (
	"maps"
	"net/http"

	"github.com/dmitrymomot/phkit/pkg/identity"
	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/transport"
)

// Scoped captures on behalf of one visitor whose identity came from a
// cookie. It shares the parent's delivery pipeline and keeps no local state.
type Scoped struct {
	c     *Client
	state identity.State
}

// Scoped returns a client stamping events with state.
func (c *Client) Scoped(state identity.State) *Scoped {
	return &Scoped{c: c, state: state}
}

// ForRequest returns a Scoped client for the visitor of r. It reports false
// when r carries no identity cookie and identity.Middleware did not run.
func (c *Client) ForRequest(r *http.Request) (*Scoped, bool) {
	state, ok := identity.FromRequest(r, c.cfg.APIKey)
	if !ok {
		return nil, false
	}
	return c.Scoped(state), true
}

// State returns the visitor identity.
func (s *Scoped) State() identity.State { return s.state }

// Capture records event for the visitor.
func (s *Scoped) Capture(event string, props map[string]any) (transport.Event, error) {
	if event == "" {
		return nil, ErrEmptyEventName
	}
	if s.c.isClosed() {
		return nil, ErrClosed
	}

	properties := make(map[string]any, len(props)+5)
	maps.Copy(properties, props)
	properties["token"] = s.c.cfg.APIKey
	properties["distinct_id"] = s.state.DistinctID
	properties["$lib"] = Lib
	properties["$lib_version"] = Version
	if s.state.DeviceID != "" {
		properties["$device_id"] = s.state.DeviceID
	}
	if s.state.SessionID != "" {
		properties["$session_id"] = s.state.SessionID
	}

	e := transport.Event{
		"event":      event,
		"properties": properties,
		"uuid":       s.c.newID(),
		"timestamp":  s.c.clock.Now(),
	}
	s.c.deliver(e)

	s.c.log.Debug("scoped event captured", logger.Event(event), logger.DistinctID(s.state.DistinctID))
	return maps.Clone(e), nil
}
