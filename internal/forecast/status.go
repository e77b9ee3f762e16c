// Package forecast runs the per-symbol pipeline: features, scaling, windowing, optional
// hyperparameter search, training, evaluation and persistence.
package forecast

import (
	"errors"
	"fmt"

	"github.com/your-org/bar-forecast/internal/feature"
)

// Status is the outcome of one symbol run.
type Status int

const (
	// Succeeded means a model was trained and evaluated.
	Succeeded Status = iota
	// Skipped means the symbol had too little data. Not an error for the batch.
	Skipped
	// Failed covers numeric instability, invalid configuration and cancellation.
	Failed
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Classify maps a run error to its Status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return Succeeded
	case errors.Is(err, feature.ErrInsufficientData):
		return Skipped
	default:
		return Failed
	}
}
