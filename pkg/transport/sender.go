package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/facebookgo/clock"

	"github.com/dmitrymomot/phkit/pkg/async"
	"github.com/dmitrymomot/phkit/pkg/logger"
)

// Response is the outcome of one attempt.
type Response struct {
	// StatusCode is 0 when no HTTP response was received.
	StatusCode int
	// JSON is the decoded body of a successful response.
	JSON any
	// Text is the raw body, kept for failed responses.
	Text string
	Err  error
}

// OK reports a 200 response with a valid body.
func (r Response) OK() bool {
	return r.StatusCode == http.StatusOK && r.Err == nil
}

// ErrorHook observes every failed attempt with the request that failed.
type ErrorHook func(Response, Request)

const (
	DefaultTimeout       = 60 * time.Second
	DefaultBeaconTimeout = 10 * time.Second
	maxErrorBody         = 64 * 1024
)

// Sender performs single delivery attempts.
// Zero value is not usable; use NewSender to create instances.
type Sender struct {
	client        *http.Client
	clock         clock.Clock
	log           *slog.Logger
	metrics       *Metrics
	onError       ErrorHook
	timeout       time.Duration
	beaconTimeout time.Duration
	userAgent     string

	beacons sync.WaitGroup
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) SenderOption {
	return func(s *Sender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithSenderClock sets the clock used for cache-busting timestamps.
func WithSenderClock(c clock.Clock) SenderOption {
	return func(s *Sender) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSenderLogger sets the logger.
func WithSenderLogger(l *slog.Logger) SenderOption {
	return func(s *Sender) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the counters updated by every attempt.
func WithMetrics(m *Metrics) SenderOption {
	return func(s *Sender) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithErrorHook sets a hook called for every failed attempt.
func WithErrorHook(h ErrorHook) SenderOption {
	return func(s *Sender) { s.onError = h }
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithBeaconTimeout bounds fire-and-forget requests.
func WithBeaconTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.beaconTimeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) SenderOption {
	return func(s *Sender) { s.userAgent = ua }
}

// NewSender creates a Sender with a pooled HTTP client and no-op metrics.
func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		clock:         clock.New(),
		log:           slog.Default(),
		timeout:       DefaultTimeout,
		beaconTimeout: DefaultBeaconTimeout,
		userAgent:     "phkit/1.0",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics, _ = NewMetrics(nil)
	}
	s.log = s.log.With(logger.Component("transport"))
	return s
}

// Metrics returns the sender's counters.
func (s *Sender) Metrics() *Metrics { return s.metrics }

// Do performs one attempt and waits for the response. It never panics and
// reports every failure through Response.Err.
func (s *Sender) Do(ctx context.Context, req Request) Response {
	resp := s.do(ctx, req, nil)
	if !resp.OK() && s.onError != nil {
		s.onError(resp, req)
	}
	return resp
}

// Beacon sends req in the background with its own timeout, detached from
// any caller context, and ignores the outcome.
func (s *Sender) Beacon(req Request) {
	req.Transport = ModeBeacon
	s.beacons.Add(1)
	async.Async(context.Background(), req, func(ctx context.Context, r Request) (Response, error) {
		defer s.beacons.Done()
		ctx, cancel := context.WithTimeout(ctx, s.beaconTimeout)
		defer cancel()
		resp := s.do(ctx, r, url.Values{"beacon": {"1"}})
		if resp.Err != nil {
			s.log.Debug("beacon request failed", logger.URL(r.URL), logger.Error(resp.Err))
		}
		return resp, nil
	})
}

// Wait blocks until every beacon started so far has finished.
func (s *Sender) Wait() {
	s.beacons.Wait()
}

func (s *Sender) do(ctx context.Context, req Request, extra url.Values) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("request panicked", logger.URL(req.URL), slog.Any("panic", r))
			resp = Response{Err: fmt.Errorf("%w: panic: %v", ErrRequestFailed, r)}
		}
	}()

	body, err := req.Data.Encode(req.Compression)
	if err != nil {
		return Response{Err: err}
	}

	query := url.Values{"_": {strconv.FormatInt(s.clock.Now().UnixMilli(), 10)}}
	for k, v := range body.Query {
		query[k] = v
	}
	for k, v := range extra {
		query[k] = v
	}
	target := ExtendURL(req.URL, query)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), target, bytes.NewReader(body.Data))
	if err != nil {
		return Response{Err: fmt.Errorf("%w: %w", ErrRequestFailed, err)}
	}
	httpReq.Header.Set("Content-Type", body.ContentType)
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	s.metrics.started(ctx)
	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		s.metrics.finished(ctx, 0)
		return Response{Err: fmt.Errorf("%w: %w", ErrRequestFailed, err)}
	}
	defer func() { _ = httpResp.Body.Close() }()
	s.metrics.finished(ctx, httpResp.StatusCode)

	resp = Response{StatusCode: httpResp.StatusCode}
	if httpResp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		resp.Text = string(raw)
		resp.Err = fmt.Errorf("%w: status %d", ErrRequestFailed, httpResp.StatusCode)
		return resp
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		resp.Err = fmt.Errorf("%w: %w", ErrRequestFailed, err)
		return resp
	}
	resp.Text = string(raw)
	if err := json.Unmarshal(raw, &resp.JSON); err != nil {
		s.log.Error("failed to parse response body", logger.URL(req.URL), logger.Error(err))
		resp.JSON = nil
		resp.Err = fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	return resp
}
