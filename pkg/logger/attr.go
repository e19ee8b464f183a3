package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". Nil errors produce an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the emitting component under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// SessionID records a session id under "session_id". Empty ids are dropped.
func SessionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("session_id", id)
}

// WindowID records a window id under "window_id". Empty ids are dropped.
func WindowID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("window_id", id)
}

// DistinctID records the visitor id under "distinct_id". Empty ids are dropped.
func DistinctID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("distinct_id", id)
}

// Event records an analytics event name under "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// URL records a request URL under "url".
func URL(u string) slog.Attr {
	return slog.String("url", u)
}

// BatchKey records a batch key under "batch_key". Empty keys are dropped.
func BatchKey(key string) slog.Attr {
	if key == "" {
		return slog.Attr{}
	}
	return slog.String("batch_key", key)
}

// StatusCode records an HTTP status under "status_code".
func StatusCode(code int) slog.Attr {
	return slog.Int("status_code", code)
}

// RetryCount records the retry count under "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Duration records a duration under "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Group creates a slog group attribute.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}
