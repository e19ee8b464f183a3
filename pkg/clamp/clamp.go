// Package clamp keeps numeric configuration knobs inside supported bounds.
package clamp

import (
	"cmp"
	"log/slog"
)

// Range returns value limited to [lo, hi]. A zero value means "not configured"
// and yields fallback. Out of range values are clamped with a warning on log
// (nil log stays silent).
func Range[T cmp.Ordered](value, lo, hi T, label string, fallback T, log *slog.Logger) T {
	var zero T
	if value == zero {
		return fallback
	}
	if value < lo {
		if log != nil {
			log.Warn(label+" was set below the minimum, using the minimum",
				slog.Any("value", value), slog.Any("min", lo))
		}
		return lo
	}
	if value > hi {
		if log != nil {
			log.Warn(label+" was set above the maximum, using the maximum",
				slog.Any("value", value), slog.Any("max", hi))
		}
		return hi
	}
	return value
}
