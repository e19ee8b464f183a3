package transport

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/dmitrymomot/phkit/pkg/async"
	"github.com/dmitrymomot/phkit/pkg/logger"
)

const (
	DefaultMaxRetries   = 10
	DefaultPollInterval = 3 * time.Second

	baseRetryDelay = 3 * time.Second
	maxRetryDelay  = 30 * time.Minute
)

// IsTerminal reports statuses that are never retried.
func IsTerminal(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError:
		return true
	}
	return false
}

// RetryDelay returns the delay before retry number retries+1 for a jitter
// fraction in [-0.5, 0.5]: 3s doubled per retry, capped at 30 minutes, then
// moved by the fraction of the span between half that and the full delay.
func RetryDelay(retries int, jitterFraction float64) time.Duration {
	raw := float64(baseRetryDelay.Milliseconds()) * math.Pow(2, float64(retries))
	capped := math.Min(float64(maxRetryDelay.Milliseconds()), raw)
	minDelay := capped / 2
	ms := math.Ceil(capped + jitterFraction*(capped-minDelay))
	return time.Duration(ms) * time.Millisecond
}

// NextRetryDelay is RetryDelay with a random jitter fraction.
func NextRetryDelay(retries int) time.Duration {
	return RetryDelay(retries, rand.Float64()-0.5)
}

type pendingRequest struct {
	ctx     context.Context
	req     Request
	retryAt time.Time
	resolve async.Resolver[Response]
}

// PendingRequest describes a request waiting for its next attempt.
type PendingRequest struct {
	Request Request
	RetryAt time.Time
}

// RetryQueue resends failed requests with backoff until they succeed, fail
// terminally, or exhaust the retry budget.
type RetryQueue struct {
	sender       *Sender
	clock        clock.Clock
	log          *slog.Logger
	maxRetries   int
	pollInterval time.Duration
	delay        func(retries int) time.Duration

	mu      sync.Mutex
	queue   []*pendingRequest
	poller  *clock.Timer
	online  bool
	closed  bool
	pending sync.WaitGroup
}

// RetryOption configures a RetryQueue.
type RetryOption func(*RetryQueue)

// WithMaxRetries sets the retry budget; negative values are ignored.
func WithMaxRetries(n int) RetryOption {
	return func(q *RetryQueue) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

// WithPollInterval sets how often due retries are checked.
func WithPollInterval(d time.Duration) RetryOption {
	return func(q *RetryQueue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithRetryClock sets the clock driving the poller.
func WithRetryClock(c clock.Clock) RetryOption {
	return func(q *RetryQueue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithRetryLogger sets the logger.
func WithRetryLogger(l *slog.Logger) RetryOption {
	return func(q *RetryQueue) {
		if l != nil {
			q.log = l
		}
	}
}

// WithRetryDelay replaces the backoff function.
func WithRetryDelay(fn func(retries int) time.Duration) RetryOption {
	return func(q *RetryQueue) {
		if fn != nil {
			q.delay = fn
		}
	}
}

// NewRetryQueue creates a RetryQueue sending through sender.
func NewRetryQueue(sender *Sender, opts ...RetryOption) *RetryQueue {
	q := &RetryQueue{
		sender:       sender,
		clock:        clock.New(),
		log:          slog.Default(),
		maxRetries:   DefaultMaxRetries,
		pollInterval: DefaultPollInterval,
		delay:        NextRetryDelay,
		online:       true,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.log = q.log.With(logger.Component("retry_queue"))
	return q
}

// Send attempts req in the background. The returned Future resolves exactly
// once: with the first successful response, with a terminal failure, or with
// the last failure joined with ErrRetriesExhausted.
func (q *RetryQueue) Send(ctx context.Context, req Request) *async.Future[Response] {
	f, resolve := async.NewPromise[Response]()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		resolve(Response{Err: ErrClosed}, nil)
		return f
	}
	q.pending.Add(1)
	q.mu.Unlock()

	go q.attempt(&pendingRequest{ctx: ctx, req: req, resolve: resolve})
	return f
}

func (q *RetryQueue) attempt(p *pendingRequest) {
	defer q.pending.Done()

	if err := p.ctx.Err(); err != nil {
		p.resolve(Response{Err: err}, nil)
		return
	}

	req := p.req
	req.URL = withRetryCount(req.URL, req.RetriesPerformedSoFar)
	resp := q.sender.Do(p.ctx, req)
	if resp.OK() || resp.StatusCode == http.StatusOK {
		p.resolve(resp, nil)
		return
	}

	if IsTerminal(resp.StatusCode) {
		q.log.Debug("request failed terminally",
			logger.URL(p.req.URL), logger.StatusCode(resp.StatusCode))
		p.resolve(resp, nil)
		return
	}

	if p.req.RetriesPerformedSoFar >= q.maxRetries {
		resp.Err = errors.Join(ErrRetriesExhausted, resp.Err)
		q.log.Warn("request dropped after retries",
			logger.URL(p.req.URL), logger.RetryCount(p.req.RetriesPerformedSoFar), logger.Error(resp.Err))
		p.resolve(resp, nil)
		return
	}

	if !q.enqueue(p) {
		p.resolve(resp, nil)
	}
}

// enqueue schedules p for its next attempt. It reports false when closed.
func (q *RetryQueue) enqueue(p *pendingRequest) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	wait := q.delay(p.req.RetriesPerformedSoFar)
	p.req.RetriesPerformedSoFar++
	p.retryAt = q.clock.Now().Add(wait)
	q.queue = append(q.queue, p)
	q.pending.Add(1)

	q.log.Debug("request scheduled for retry",
		logger.URL(p.req.URL), logger.RetryCount(p.req.RetriesPerformedSoFar), logger.Duration(wait))

	if q.poller == nil {
		q.poller = q.clock.AfterFunc(q.pollInterval, q.poll)
	}
	return true
}

func (q *RetryQueue) poll() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}

	var due []*pendingRequest
	if q.online {
		now := q.clock.Now()
		keep := q.queue[:0:0]
		for _, p := range q.queue {
			if p.retryAt.After(now) {
				keep = append(keep, p)
			} else {
				due = append(due, p)
			}
		}
		q.queue = keep
	}

	if q.poller != nil {
		q.poller.Stop()
		q.poller = nil
	}
	if len(q.queue) > 0 {
		q.poller = q.clock.AfterFunc(q.pollInterval, q.poll)
	}
	q.mu.Unlock()

	for _, p := range due {
		go q.attempt(p)
	}
}

// SetOnline pauses retries while offline. Going online retries every due
// request right away.
func (q *RetryQueue) SetOnline(online bool) {
	q.mu.Lock()
	was := q.online
	q.online = online
	q.mu.Unlock()

	if online && !was {
		q.poll()
	}
}

// Len returns the number of requests waiting for a retry.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Pending returns the requests waiting for a retry, in scheduling order.
func (q *RetryQueue) Pending() []PendingRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]PendingRequest, 0, len(q.queue))
	for _, p := range q.queue {
		out = append(out, PendingRequest{Request: p.req, RetryAt: p.retryAt})
	}
	return out
}

func (q *RetryQueue) drain() []*pendingRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.poller != nil {
		q.poller.Stop()
		q.poller = nil
	}
	items := slices.Clone(q.queue)
	q.queue = nil
	return items
}

// Unload hands every waiting request to the beacon path and resolves its
// Future with ErrSentByBeacon. It does not wait for the network.
func (q *RetryQueue) Unload() {
	for _, p := range q.drain() {
		req := p.req
		req.URL = withRetryCount(req.URL, req.RetriesPerformedSoFar)
		q.sender.Beacon(req)
		p.resolve(Response{Err: ErrSentByBeacon}, nil)
		q.pending.Done()
	}
}

// Close stops polling and resolves waiting requests with ErrClosed. Attempts
// already on the wire finish, but failures are no longer retried.
func (q *RetryQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	for _, p := range q.drain() {
		p.resolve(Response{Err: ErrClosed}, nil)
		q.pending.Done()
	}
}

// Wait blocks until every Send has resolved.
func (q *RetryQueue) Wait() {
	q.pending.Wait()
}
