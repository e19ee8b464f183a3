package transport

import (
	"context"
	"maps"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/dmitrymomot/phkit/pkg/transport"

// Metrics counts requests in flight and responses per status code. Status
// 0 stands for requests that got no HTTP response.
type Metrics struct {
	inFlight  metric.Int64UpDownCounter
	responses metric.Int64Counter

	mu       sync.Mutex
	current  int64
	byStatus map[int]int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	InFlight  int64
	Responses map[int]int64
}

// NewMetrics registers the counters on provider; nil means a no-op provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	inFlight, err := meter.Int64UpDownCounter("phkit.requests.in_flight",
		metric.WithDescription("Requests sent and not yet answered"))
	if err != nil {
		return nil, err
	}
	responses, err := meter.Int64Counter("phkit.responses",
		metric.WithDescription("Responses received, by HTTP status code"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		inFlight:  inFlight,
		responses: responses,
		byStatus:  make(map[int]int64),
	}, nil
}

func (m *Metrics) started(ctx context.Context) {
	m.mu.Lock()
	m.current++
	m.mu.Unlock()
	m.inFlight.Add(ctx, 1)
}

func (m *Metrics) finished(ctx context.Context, status int) {
	m.mu.Lock()
	m.current--
	m.byStatus[status]++
	m.mu.Unlock()

	m.inFlight.Add(ctx, -1)
	m.responses.Add(ctx, 1, metric.WithAttributes(attribute.Int("status_code", status)))
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{InFlight: m.current, Responses: maps.Clone(m.byStatus)}
}
