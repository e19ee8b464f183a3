package client

import (
	"maps"
	"net/http"
	"slices"

	"github.com/dmitrymomot/phkit/pkg/identity"
	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/transport"
)

// PassiveEvents are captured without extending the session: they happen in
// the background and say nothing about user activity.
var PassiveEvents = []string{
	"$$heatmap",
	"$web_vitals",
	"$dead_click",
	"$copy_autocapture",
	"$snapshot",
	"$$client_ingestion_warning",
}

// internalKeys are persisted properties that never become event properties.
var internalKeys = []string{
	identity.KeySessionID,
	identity.KeyClientSessionProps,
	identity.KeyEnabledFlags,
	identity.KeyFlagPayloads,
	identity.KeyUserState,
}

// Capture records event with props and returns the event as queued. It
// fails only for an empty name or a closed client.
func (c *Client) Capture(event string, props map[string]any) (transport.Event, error) {
	if event == "" {
		return nil, ErrEmptyEventName
	}
	if c.isClosed() {
		return nil, ErrClosed
	}

	now := c.clock.Now()
	readOnly := slices.Contains(PassiveEvents, event)
	res := c.sessions.CheckAndGetSessionAndWindowID(readOnly, now.UnixMilli())

	properties := c.superProperties()
	maps.Copy(properties, c.sessionProps.Properties())
	for key, value := range c.flags.All() {
		properties["$feature/"+key] = value
	}
	if active := c.activeFlags(); len(active) > 0 {
		properties["$active_feature_flags"] = active
	}
	maps.Copy(properties, props)

	properties["token"] = c.cfg.APIKey
	properties["distinct_id"] = c.DistinctID()
	properties["$device_id"] = c.DeviceID()
	properties["$session_id"] = res.SessionID
	properties["$window_id"] = res.WindowID
	properties["$lib"] = Lib
	properties["$lib_version"] = Version

	e := transport.Event{
		"event":      event,
		"properties": properties,
		"uuid":       c.newID(),
		"timestamp":  now,
	}
	c.deliver(e)

	c.log.Debug("event captured", logger.Event(event), logger.SessionID(res.SessionID))
	return maps.Clone(e), nil
}

// deliver queues e for the events endpoint, or sends it right away when
// batching is off.
func (c *Client) deliver(e transport.Event) {
	req := transport.Request{
		URL:         c.apiHost + EventsPath,
		Method:      http.MethodPost,
		Data:        transport.Single(e),
		Compression: c.compression,
	}
	if c.cfg.RequestBatching {
		c.requests.Enqueue(req)
		return
	}
	c.retries.Send(c.ctx, req)
}

func (c *Client) superProperties() map[string]any {
	props := c.persistence.Props()
	for _, key := range internalKeys {
		delete(props, key)
	}
	return props
}

func (c *Client) activeFlags() []string {
	all := c.flags.All()
	active := make([]string, 0, len(all))
	for key := range all {
		if c.flags.IsEnabled(key) {
			active = append(active, key)
		}
	}
	slices.Sort(active)
	return active
}

// Identify links the current anonymous user to distinctID and stores props
// on the person. Calling it again with the same id only updates props.
func (c *Client) Identify(distinctID string, props map[string]any) error {
	if distinctID == "" {
		return ErrEmptyDistinctID
	}
	if c.isClosed() {
		return ErrClosed
	}

	previous := c.DistinctID()
	if previous == distinctID && c.IsIdentified() {
		if len(props) == 0 {
			return nil
		}
		_, err := c.Capture("$set", map[string]any{"$set": props})
		return err
	}

	c.persistence.Register(map[string]any{
		identity.KeyDistinctID: distinctID,
		identity.KeyUserState:  identity.UserStateIdentified,
	})

	eventProps := map[string]any{"$anon_distinct_id": previous}
	if len(props) > 0 {
		eventProps["$set"] = props
	}
	_, err := c.Capture("$identify", eventProps)
	return err
}

// Reset forgets the current user: persisted properties are cleared, the
// session rotates and a fresh anonymous distinct id and device id are
// assigned.
func (c *Client) Reset() {
	c.persistence.Clear()
	c.sessions.ResetSessionID()

	id := c.newID()
	c.persistence.Register(map[string]any{
		identity.KeyDistinctID: id,
		identity.KeyDeviceID:   id,
		identity.KeyUserState:  identity.UserStateAnonymous,
	})
}
