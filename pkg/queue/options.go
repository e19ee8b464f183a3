package queue

import (
	"log/slog"
	"time"

	"github.com/facebookgo/clock"
)

const (
	DefaultFlushInterval = 3000 * time.Millisecond
	MinFlushInterval     = 250 * time.Millisecond
	MaxFlushInterval     = 5000 * time.Millisecond
)

// Option is a functional option for configuring a RequestQueue
type Option func(*RequestQueue)

// WithFlushInterval sets the flush delay; it is clamped to [250ms, 5s]
func WithFlushInterval(d time.Duration) Option {
	return func(q *RequestQueue) {
		q.flushInterval = d
	}
}

// WithClock sets the clock driving the flush timer and offsets
func WithClock(c clock.Clock) Option {
	return func(q *RequestQueue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithLogger sets the logger for the queue
func WithLogger(logger *slog.Logger) Option {
	return func(q *RequestQueue) {
		if logger != nil {
			q.log = logger
		}
	}
}

// WithPolling keeps the flush timer running after every flush, like the
// legacy event queue did. After more than emptyFlushLimit consecutive
// flushes with nothing to send, the timer stops until the next Enqueue.
func WithPolling(emptyFlushLimit int) Option {
	return func(q *RequestQueue) {
		q.polling = true
		q.emptyFlushLimit = max(emptyFlushLimit, 0)
	}
}
