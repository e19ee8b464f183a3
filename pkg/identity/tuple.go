package identity

import (
	"encoding/json"
	"errors"
	"math"
)

var errBadTuple = errors.New("identity.invalid_session_tuple")

// SessionTuple is the persisted session record, encoded as the JSON array
// [lastActivityMs, sessionId, sessionStartMs].
type SessionTuple struct {
	LastActivityMs int64
	SessionID      string
	StartMs        int64
}

func (t SessionTuple) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{t.LastActivityMs, t.SessionID, t.StartMs})
}

func (t *SessionTuple) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Join(errBadTuple, err)
	}
	decoded, ok := DecodeSessionTuple(raw)
	if !ok {
		return errBadTuple
	}
	*t = decoded
	return nil
}

// DecodeSessionTuple converts a stored value into a SessionTuple. It accepts
// a SessionTuple or a decoded JSON array. Legacy two-element arrays have no
// start time; the activity time is used for both.
func DecodeSessionTuple(v any) (SessionTuple, bool) {
	switch t := v.(type) {
	case SessionTuple:
		return t, true
	case *SessionTuple:
		if t == nil {
			return SessionTuple{}, false
		}
		return *t, true
	case []any:
		if len(t) < 2 {
			return SessionTuple{}, false
		}
		last, ok := toMillis(t[0])
		if !ok {
			return SessionTuple{}, false
		}
		id, ok := t[1].(string)
		if !ok && t[1] != nil {
			return SessionTuple{}, false
		}
		start := last
		if len(t) > 2 {
			if start, ok = toMillis(t[2]); !ok {
				return SessionTuple{}, false
			}
		}
		return SessionTuple{LastActivityMs: last, SessionID: id, StartMs: start}, true
	}
	return SessionTuple{}, false
}

func toMillis(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case nil:
		return 0, true
	}
	return 0, false
}
