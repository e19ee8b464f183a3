package queue

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/dmitrymomot/phkit/pkg/clamp"
	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/transport"
)

// SendFunc hands a formatted request to the transport layer.
type SendFunc func(req transport.Request)

// RequestQueue buffers requests and delivers them in batches.
type RequestQueue struct {
	send          SendFunc
	clock         clock.Clock
	log           *slog.Logger
	flushInterval time.Duration

	polling         bool
	emptyFlushLimit int

	mu           sync.Mutex
	pending      []transport.Request
	timer        *clock.Timer
	paused       bool
	idle         bool
	closed       bool
	emptyFlushes int
}

// New creates a paused RequestQueue delivering through send.
func New(send SendFunc, opts ...Option) *RequestQueue {
	q := &RequestQueue{
		send:   send,
		clock:  clock.New(),
		log:    slog.Default(),
		paused: true,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.log = q.log.With(logger.Component("request_queue"))
	q.flushInterval = clamp.Range(q.flushInterval, MinFlushInterval, MaxFlushInterval,
		"flush_interval_ms", DefaultFlushInterval, q.log)
	return q
}

// FlushInterval returns the clamped flush delay.
func (q *RequestQueue) FlushInterval() time.Duration { return q.flushInterval }

// Enqueue buffers req and arms the flush timer when the queue is enabled.
func (q *RequestQueue) Enqueue(req transport.Request) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Debug("dropping request enqueued after close", logger.URL(req.URL))
		return
	}
	q.pending = append(q.pending, req)
	q.idle = false
	q.emptyFlushes = 0
	q.armLocked()
}

// Enable starts flushing.
func (q *RequestQueue) Enable() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.paused = false
	q.armLocked()
}

// Disable pauses flushing; pending requests stay buffered.
func (q *RequestQueue) Disable() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.paused = true
	q.stopLocked()
}

// Len returns the number of buffered requests.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *RequestQueue) armLocked() {
	if q.paused || q.closed || q.idle || q.timer != nil {
		return
	}
	if !q.polling && len(q.pending) == 0 {
		return
	}
	q.timer = q.clock.AfterFunc(q.flushInterval, q.flush)
}

func (q *RequestQueue) stopLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

func (q *RequestQueue) flush() {
	q.mu.Lock()
	q.timer = nil
	if q.paused || q.closed {
		q.mu.Unlock()
		return
	}

	pending := q.pending
	q.pending = nil

	if q.polling {
		if len(pending) == 0 {
			q.emptyFlushes++
			if q.emptyFlushes > q.emptyFlushLimit {
				q.idle = true
				q.log.Debug("queue idle, pausing flush timer", slog.Int("empty_flushes", q.emptyFlushes))
			}
		} else {
			q.emptyFlushes = 0
		}
	}
	q.armLocked()
	q.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	now := q.clock.Now()
	for _, req := range format(pending) {
		if req.Data.Kind() == transport.KindBatch {
			applyOffsets(req.Data.Events(), now)
		}
		q.dispatch(req)
	}
}

// Unload sends everything pending right away with the beacon transport,
// analytics requests first. It never panics.
func (q *RequestQueue) Unload() {
	q.mu.Lock()
	q.stopLocked()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	requests := format(pending)
	slices.SortStableFunc(requests, func(a, b transport.Request) int {
		return rank(a) - rank(b)
	})
	for _, req := range requests {
		req.Transport = transport.ModeBeacon
		q.dispatch(req)
	}
}

// Close unloads pending requests and rejects further ones.
func (q *RequestQueue) Close() {
	q.Unload()

	q.mu.Lock()
	q.closed = true
	q.stopLocked()
	q.mu.Unlock()
}

// Run enables the queue and closes it when ctx is done.
func (q *RequestQueue) Run(ctx context.Context) func() error {
	return func() error {
		q.Enable()
		<-ctx.Done()
		q.Close()
		return nil
	}
}

func (q *RequestQueue) dispatch(req transport.Request) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("send panicked", logger.URL(req.URL), logger.BatchKey(req.BatchKey), slog.Any("panic", r))
		}
	}()
	q.send(req)
}

func rank(req transport.Request) int {
	if isAnalyticsPath(req.URL) {
		return 0
	}
	return 1
}

func isAnalyticsPath(rawURL string) bool {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	return strings.HasPrefix(path, "/e")
}
