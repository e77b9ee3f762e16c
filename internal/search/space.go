package search

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// ErrInvalidSpace is returned when a search range is empty or inverted.
var ErrInvalidSpace = errors.New("invalid search space")

// IntRange is an inclusive integer range.
type IntRange struct {
	Min, Max int
}

func (r IntRange) sample(rng *rand.Rand) int {
	return r.Min + rng.Intn(r.Max-r.Min+1)
}

// FloatRange is a uniform continuous range [Min, Max].
type FloatRange struct {
	Min, Max float64
}

func (r FloatRange) sample(rng *rand.Rand) float64 {
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// LogRange is sampled uniformly in log space. Both bounds must be positive.
type LogRange struct {
	Min, Max float64
}

func (r LogRange) sample(rng *rand.Rand) float64 {
	lo, hi := math.Log(r.Min), math.Log(r.Max)
	return math.Exp(lo + rng.Float64()*(hi-lo))
}

// Space declares what a trial may vary. The embedding width is Heads × HeadDimMult so it is
// always divisible by the head count.
type Space struct {
	Heads        IntRange
	HeadDimMult  IntRange
	FFDim        IntRange
	Layers       IntRange
	Dropout      FloatRange
	LearningRate LogRange
}

// Validate checks every range.
func (s Space) Validate() error {
	ints := []struct {
		name string
		r    IntRange
	}{
		{"heads", s.Heads},
		{"head_dim_mult", s.HeadDimMult},
		{"ff_dim", s.FFDim},
		{"layers", s.Layers},
	}
	for _, x := range ints {
		if x.r.Min <= 0 || x.r.Max < x.r.Min {
			return fmt.Errorf("%w: %s [%d, %d]", ErrInvalidSpace, x.name, x.r.Min, x.r.Max)
		}
	}
	if s.Dropout.Min < 0 || s.Dropout.Max >= 1 || s.Dropout.Max < s.Dropout.Min {
		return fmt.Errorf("%w: dropout [%v, %v]", ErrInvalidSpace, s.Dropout.Min, s.Dropout.Max)
	}
	if s.LearningRate.Min <= 0 || s.LearningRate.Max < s.LearningRate.Min ||
		math.IsInf(s.LearningRate.Max, 0) {
		return fmt.Errorf("%w: learning_rate [%v, %v]", ErrInvalidSpace, s.LearningRate.Min, s.LearningRate.Max)
	}
	return nil
}

// Params is one sampled configuration.
type Params struct {
	Heads        int     `json:"heads"`
	DModel       int     `json:"d_model"`
	FFDim        int     `json:"ff_dim"`
	Layers       int     `json:"layers"`
	Dropout      float64 `json:"dropout"`
	LearningRate float64 `json:"learning_rate"`
}

// Sampler draws configurations at random. The draw for a trial depends only on the seed and
// the trial number, so parallel runs sample the same configurations as sequential ones.
type Sampler struct {
	Seed int64
}

// Sample returns the configuration for trial number n.
func (s Sampler) Sample(space Space, n int) Params {
	rng := rand.New(rand.NewSource(s.Seed + int64(n)*7919))
	heads := space.Heads.sample(rng)
	return Params{
		Heads:        heads,
		DModel:       heads * space.HeadDimMult.sample(rng),
		FFDim:        space.FFDim.sample(rng),
		Layers:       space.Layers.sample(rng),
		Dropout:      space.Dropout.sample(rng),
		LearningRate: space.LearningRate.sample(rng),
	}
}
