package search

import (
	"math"
	"sort"
)

// Pruner decides whether a running trial should stop after reporting value at step.
type Pruner interface {
	Prune(study *Study, trial *Trial, step int, value float64) bool
}

// MedianPruner prunes a trial whose intermediate value is worse than the median of the
// complete trials' values at the same step. Nothing is pruned until StartupTrials trials
// have completed or before step WarmupSteps.
type MedianPruner struct {
	StartupTrials int
	WarmupSteps   int
}

// Prune implements Pruner. Lower values are better; a non-finite value is always pruned
// once the pruner is active.
func (p MedianPruner) Prune(study *Study, trial *Trial, step int, value float64) bool {
	if step < p.WarmupSteps {
		return false
	}
	values, completed := study.valuesAt(step, trial)
	if completed < p.StartupTrials || len(values) == 0 {
		return false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return true
	}
	return value > median(values)
}

func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

// NopPruner never prunes.
type NopPruner struct{}

// Prune implements Pruner.
func (NopPruner) Prune(*Study, *Trial, int, float64) bool { return false }
