// Package datastore supplies historical bars to the forecasting pipeline.
package datastore

import (
	"context"
	"time"

	"github.com/your-org/bar-forecast/internal/feature"
)

// BarSource returns the bars of one symbol in [start, end), ordered by time.
// A zero start or end leaves that side unbounded. An empty result is not an error.
type BarSource interface {
	FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]feature.Bar, error)
}

func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && !t.Before(end) {
		return false
	}
	return true
}
