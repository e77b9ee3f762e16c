// Package window cuts a feature table into fixed-length sequences with aligned targets.
package window

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/your-org/bar-forecast/internal/feature"
)

// ErrInvalidArgument is returned for a non-positive length or a ratio outside (0, 1).
var ErrInvalidArgument = errors.New("window: invalid argument")

// Sample is one window of L feature rows and the target that follows it.
type Sample struct {
	Start       int // absolute index of the first feature row
	Features    [][]float64
	Target      float64
	TargetIndex int // absolute index of the target row
	Time        time.Time
}

// Dataset is an ordered list of samples sharing one shape.
type Dataset struct {
	Samples     []Sample
	Length      int
	NumFeatures int
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Samples)
}

// Inputs returns the feature windows in order.
func (d *Dataset) Inputs() [][][]float64 {
	out := make([][][]float64, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Features
	}
	return out
}

// Targets returns the targets in order.
func (d *Dataset) Targets() []float64 {
	out := make([]float64, len(d.Samples))
	for i, s := range d.Samples {
		out[i] = s.Target
	}
	return out
}

// Tail splits off the last frac of samples, keeping time order: (head, tail).
func (d *Dataset) Tail(frac float64) (*Dataset, *Dataset, error) {
	if !(frac > 0 && frac < 1) {
		return nil, nil, fmt.Errorf("%w: tail fraction %v", ErrInvalidArgument, frac)
	}
	n := int(math.Ceil(float64(len(d.Samples)) * frac))
	cut := len(d.Samples) - n
	if n == 0 || cut == 0 {
		return nil, nil, fmt.Errorf("window: %d samples cannot give a %.2f tail: %w", len(d.Samples), frac, feature.ErrInsufficientData)
	}
	head := &Dataset{Samples: d.Samples[:cut], Length: d.Length, NumFeatures: d.NumFeatures}
	tail := &Dataset{Samples: d.Samples[cut:], Length: d.Length, NumFeatures: d.NumFeatures}
	return head, tail, nil
}

// Boundary returns trainEnd = floor((count-L) * ratio).
func Boundary(count, length int, ratio float64) (int, error) {
	if length <= 0 {
		return 0, fmt.Errorf("%w: window length %d", ErrInvalidArgument, length)
	}
	if !(ratio > 0 && ratio < 1) {
		return 0, fmt.Errorf("%w: train ratio %v", ErrInvalidArgument, ratio)
	}
	if count <= length {
		return 0, fmt.Errorf("window: %d rows for window length %d: %w", count, length, feature.ErrInsufficientData)
	}
	return int(math.Floor(float64(count-length) * ratio)), nil
}

// Split builds the training windows from rows [0, trainEnd+L) and the test windows from
// rows [trainEnd, count). The partitions overlap by L rows so the first test window has a
// full history, but no training target lies past trainEnd+L-1 and no test window starts
// before trainEnd.
func Split(t *feature.Table, trainEnd, length int, target feature.Column, features []feature.Column) (train, test *Dataset, err error) {
	if length <= 0 {
		return nil, nil, fmt.Errorf("%w: window length %d", ErrInvalidArgument, length)
	}
	if trainEnd < 0 || trainEnd+length > t.Len() {
		return nil, nil, fmt.Errorf("%w: train end %d with length %d over %d rows", ErrInvalidArgument, trainEnd, length, t.Len())
	}
	if !target.Valid() || len(features) == 0 {
		return nil, nil, fmt.Errorf("%w: target %s with %d feature columns", ErrInvalidArgument, target, len(features))
	}

	train, err = Build(t, 0, trainEnd+length, length, target, features)
	if err != nil {
		return nil, nil, fmt.Errorf("window: train partition: %w", err)
	}
	test, err = Build(t, trainEnd, t.Len(), length, target, features)
	if err != nil {
		return nil, nil, fmt.Errorf("window: test partition: %w", err)
	}
	return train, test, nil
}

// Build emits every window inside rows [from, to): windows start at i in [from, to-L)
// and their target is row i+L.
func Build(t *feature.Table, from, to, length int, target feature.Column, features []feature.Column) (*Dataset, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: window length %d", ErrInvalidArgument, length)
	}
	ds := &Dataset{Length: length, NumFeatures: len(features)}
	n := to - from - length
	if n <= 0 {
		return nil, fmt.Errorf("window: rows [%d, %d) hold no window of length %d: %w", from, to, length, feature.ErrInsufficientData)
	}
	ds.Samples = make([]Sample, 0, n)
	for i := from; i < to-length; i++ {
		rows := make([][]float64, length)
		for k := 0; k < length; k++ {
			rows[k] = t.Features(i+k, features)
		}
		ds.Samples = append(ds.Samples, Sample{
			Start:       i,
			Features:    rows,
			Target:      t.Rows[i+length].Get(target),
			TargetIndex: i + length,
			Time:        t.Rows[i+length].Time,
		})
	}
	return ds, nil
}
