package feature

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInsufficientData is returned when too few rows remain to build features,
	// fit a scaler or emit a window. The affected symbol is skipped.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidBars is returned for non-finite values, negative volume or unordered timestamps.
	ErrInvalidBars = errors.New("feature: invalid bars")
	// ErrNonFinite is returned when a feature table would hold a NaN or Inf.
	ErrNonFinite = errors.New("feature: non-finite value")
)

// Bar is one OHLCV observation.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateBars checks that bars are finite, volume is non-negative and
// timestamps are strictly ascending.
func ValidateBars(bars []Bar) error {
	for i, b := range bars {
		if !finite(b.Open) || !finite(b.High) || !finite(b.Low) || !finite(b.Close) || !finite(b.Volume) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidBars, i)
		}
		if b.Volume < 0 {
			return fmt.Errorf("%w: negative volume at index %d", ErrInvalidBars, i)
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return fmt.Errorf("%w: timestamp at index %d is not after %s", ErrInvalidBars, i, bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}
