// Package model implements a small causal transformer encoder that maps a window of
// feature rows to one scalar, with hand-written backpropagation on gonum matrices.
package model

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned when an architecture cannot be built.
var ErrInvalidConfig = errors.New("model: invalid configuration")

// Precision selects the arithmetic used for activations.
type Precision int

const (
	// Full keeps every activation in float64.
	Full Precision = iota
	// Mixed rounds activations to float32 after every matrix product.
	// Master weights, gradients and optimizer state stay in float64.
	Mixed
)

func (p Precision) String() string {
	switch p {
	case Full:
		return "full"
	case Mixed:
		return "mixed"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// Config describes one architecture.
type Config struct {
	InputDim  int       `json:"input_dim"`
	SeqLen    int       `json:"seq_len"`
	DModel    int       `json:"d_model"`
	Heads     int       `json:"heads"`
	FFDim     int       `json:"ff_dim"`
	Layers    int       `json:"layers"`
	Dropout   float64   `json:"dropout"`
	Seed      int64     `json:"seed"`
	Precision Precision `json:"precision"`
}

// Validate rejects architectures that cannot be built.
func (c Config) Validate() error {
	switch {
	case c.InputDim <= 0:
		return fmt.Errorf("%w: input_dim=%d", ErrInvalidConfig, c.InputDim)
	case c.SeqLen <= 0:
		return fmt.Errorf("%w: seq_len=%d", ErrInvalidConfig, c.SeqLen)
	case c.DModel <= 0:
		return fmt.Errorf("%w: d_model=%d", ErrInvalidConfig, c.DModel)
	case c.Heads <= 0:
		return fmt.Errorf("%w: heads=%d", ErrInvalidConfig, c.Heads)
	case c.DModel%c.Heads != 0:
		return fmt.Errorf("%w: d_model %d is not divisible by heads %d", ErrInvalidConfig, c.DModel, c.Heads)
	case c.FFDim <= 0:
		return fmt.Errorf("%w: ff_dim=%d", ErrInvalidConfig, c.FFDim)
	case c.Layers <= 0:
		return fmt.Errorf("%w: layers=%d", ErrInvalidConfig, c.Layers)
	case !(c.Dropout >= 0 && c.Dropout < 1):
		return fmt.Errorf("%w: dropout=%v", ErrInvalidConfig, c.Dropout)
	case c.Precision != Full && c.Precision != Mixed:
		return fmt.Errorf("%w: %s", ErrInvalidConfig, c.Precision)
	}
	return nil
}

// HeadDim returns the per-head width.
func (c Config) HeadDim() int {
	return c.DModel / c.Heads
}
