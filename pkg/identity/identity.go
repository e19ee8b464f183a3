package identity

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/phkit/pkg/uuidv7"
)

// Persisted property keys.
const (
	KeyDistinctID         = "distinct_id"
	KeyDeviceID           = "$device_id"
	KeyUserState          = "$user_state"
	KeySessionID          = "$sesid"
	KeyEnabledFlags       = "$enabled_feature_flags"
	KeyFlagPayloads       = "$feature_flag_payloads"
	KeyClientSessionProps = "$client_session_props"
)

// User states stored under KeyUserState.
const (
	UserStateAnonymous  = "anonymous"
	UserStateIdentified = "identified"
)

// State is the identity read from a persistence cookie.
type State struct {
	DistinctID   string
	IsIdentified bool
	SessionID    string
	DeviceID     string
}

var nameReplacer = strings.NewReplacer("+", "PL", "/", "SL", "=", "EQ")

// CookieName returns the persistence cookie name for apiKey.
func CookieName(apiKey string) string {
	return "ph_" + nameReplacer.Replace(apiKey) + "_posthog"
}

type cookiePayload struct {
	DistinctID string          `json:"distinct_id"`
	DeviceID   string          `json:"$device_id,omitempty"`
	UserState  string          `json:"$user_state,omitempty"`
	SessionID  json.RawMessage `json:"$sesid,omitempty"`
}

// Parse decodes a cookie value, raw or percent-encoded. It reports false
// for empty or malformed values and for values without a distinct_id.
func Parse(raw string) (State, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return State{}, false
	}
	if !strings.HasPrefix(raw, "{") {
		unescaped, err := url.PathUnescape(raw)
		if err != nil {
			return State{}, false
		}
		raw = unescaped
	}

	var p cookiePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.DistinctID == "" {
		return State{}, false
	}

	state := State{
		DistinctID:   p.DistinctID,
		IsIdentified: p.UserState == UserStateIdentified,
		DeviceID:     p.DeviceID,
	}
	if len(p.SessionID) > 0 {
		var tuple SessionTuple
		if json.Unmarshal(p.SessionID, &tuple) == nil {
			state.SessionID = tuple.SessionID
		}
	}
	return state, true
}

// SerializeAnonymous returns a cookie value for a new anonymous visitor
// whose distinct id and device id are both id, with a fresh session.
func SerializeAnonymous(id string) string {
	return serializeAnonymous(id, uuidv7.New(), time.Now().UnixMilli())
}

func serializeAnonymous(id, sessionID string, nowMs int64) string {
	data, _ := json.Marshal(map[string]any{
		KeyDistinctID: id,
		KeyDeviceID:   id,
		KeyUserState:  UserStateAnonymous,
		KeySessionID:  SessionTuple{LastActivityMs: nowMs, SessionID: sessionID, StartMs: nowMs},
	})
	return string(data)
}
