package ingest

import (
	"context"
	"slices"
	"sync"
)

// Sink receives decoded events. path is the route the events arrived on,
// without a trailing slash ("/e", "/batch", "/i/v0/e", "/s").
type Sink interface {
	Ingest(ctx context.Context, path string, events []map[string]any) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, path string, events []map[string]any) error

func (f SinkFunc) Ingest(ctx context.Context, path string, events []map[string]any) error {
	return f(ctx, path, events)
}

// Received is one event kept by MemorySink.
type Received struct {
	Path  string
	Event map[string]any
}

// MemorySink keeps every event in memory.
type MemorySink struct {
	mu       sync.Mutex
	received []Received
	notify   chan struct{}
}

func NewMemorySink() *MemorySink {
	return &MemorySink{notify: make(chan struct{}, 1)}
}

func (s *MemorySink) Ingest(_ context.Context, path string, events []map[string]any) error {
	s.mu.Lock()
	for _, e := range events {
		s.received = append(s.received, Received{Path: path, Event: e})
	}
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Received returns everything ingested so far, in arrival order.
func (s *MemorySink) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.received)
}

// Events returns the events that arrived on path.
func (s *MemorySink) Events(path string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]any
	for _, r := range s.received {
		if r.Path == path {
			out = append(out, r.Event)
		}
	}
	return out
}

func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.received)
}

// Wait blocks until at least n events arrived or ctx is done.
func (s *MemorySink) Wait(ctx context.Context, n int) error {
	for s.Len() < n {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.notify:
		}
	}
	return nil
}
