package queue

import (
	"encoding/json"
	"math"
	"time"

	"github.com/dmitrymomot/phkit/pkg/transport"
)

// format coalesces requests sharing a key into one batch request per key,
// keeping first-seen key order and enqueue order within a key. The first
// request of a group provides URL, headers and options. Raw payloads are
// never merged. Events are copied, so callers may rewrite them.
func format(requests []transport.Request) []transport.Request {
	var (
		out    []transport.Request
		events [][]transport.Event
		groups = make(map[string]int)
	)

	for _, req := range requests {
		if req.Data.Kind() == transport.KindRaw {
			out = append(out, req)
			events = append(events, nil)
			continue
		}

		idx, ok := groups[req.Key()]
		if !ok {
			idx = len(out)
			groups[req.Key()] = idx
			out = append(out, req)
			events = append(events, nil)
		}
		events[idx] = append(events[idx], req.Data.Clone().Events()...)
	}

	for i := range out {
		if out[i].Data.Kind() == transport.KindRaw {
			continue
		}
		out[i].Data = transport.Batch(events[i]...)
	}
	return out
}

// applyOffsets replaces each event's timestamp with its distance from now in
// milliseconds. Events without a readable timestamp are left alone.
func applyOffsets(events []transport.Event, now time.Time) {
	nowMs := now.UnixMilli()
	for _, e := range events {
		ts, ok := timestampMs(e["timestamp"])
		if !ok {
			continue
		}
		e["offset"] = int64(math.Abs(float64(nowMs - ts)))
		delete(e, "timestamp")
	}
}

func timestampMs(v any) (int64, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli(), true
	case *time.Time:
		if t == nil {
			return 0, false
		}
		return t.UnixMilli(), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return 0, false
		}
		return parsed.UnixMilli(), true
	}
	return 0, false
}
