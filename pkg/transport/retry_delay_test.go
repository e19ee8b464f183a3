package transport_test

import (
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/phkit/pkg/transport"
)

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	for _, code := range []int{401, 403, 404, 500} {
		assert.True(t, transport.IsTerminal(code), code)
	}
	for _, code := range []int{0, 200, 400, 408, 429, 502, 503, 504} {
		assert.False(t, transport.IsTerminal(code), code)
	}
	assert.True(t, transport.IsTerminal(http.StatusInternalServerError))
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		retries int
		jitter  float64
		want    time.Duration
	}{
		{0, 0, 3 * time.Second},
		{0, -0.5, 2250 * time.Millisecond},
		{0, 0.5, 3750 * time.Millisecond},
		{1, 0, 6 * time.Second},
		{3, 0, 24 * time.Second},
		{10, 0, 30 * time.Minute},
		{20, -0.5, 22*time.Minute + 30*time.Second},
		{20, 0.5, 37*time.Minute + 30*time.Second},
		{40, 0.5, 37*time.Minute + 30*time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, transport.RetryDelay(tt.retries, tt.jitter), "retries=%d jitter=%v", tt.retries, tt.jitter)
	}
}

func TestNextRetryDelay_Bounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("delay stays within a quarter of the capped delay", prop.ForAll(
		func(retries int) bool {
			capped := math.Min(30*60*1000, 3000*math.Pow(2, float64(retries)))
			lo := time.Duration(math.Floor(capped*0.75)) * time.Millisecond
			hi := time.Duration(math.Ceil(capped*1.25)) * time.Millisecond

			d := transport.NextRetryDelay(retries)
			return d >= lo && d <= hi
		},
		gen.IntRange(0, 40),
	))

	properties.Property("more retries never shorten the jitter-free delay", prop.ForAll(
		func(retries int) bool {
			return transport.RetryDelay(retries+1, 0) >= transport.RetryDelay(retries, 0)
		},
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}
