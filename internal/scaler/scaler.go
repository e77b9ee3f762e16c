// Package scaler implements robust (median / interquartile range) scaling of feature columns.
package scaler

import (
	"encoding/json"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/your-org/bar-forecast/internal/feature"
)

// MinScale is the smallest IQR used as a divisor; degenerate columns fall back to 1.
const MinScale = 1e-8

// ErrEmptyPartition is returned when Fit is given no rows.
var ErrEmptyPartition = fmt.Errorf("scaler: empty partition: %w", feature.ErrInsufficientData)

// State holds the per-column statistics fitted on a training partition.
// It is immutable after Fit and safe for concurrent Apply on different tables.
type State struct {
	columns []feature.Column
	center  []float64
	scale   []float64
}

// Fit computes the median and IQR of each column over every row of t.
func Fit(t *feature.Table, cols []feature.Column) (*State, error) {
	if t == nil || t.Len() == 0 {
		return nil, ErrEmptyPartition
	}
	s := &State{
		columns: append([]feature.Column(nil), cols...),
		center:  make([]float64, len(cols)),
		scale:   make([]float64, len(cols)),
	}
	for j, c := range cols {
		if !c.Valid() {
			return nil, fmt.Errorf("scaler: unknown column %d", int(c))
		}
		values := t.Column(c)
		sort.Float64s(values)
		s.center[j] = stat.Quantile(0.5, stat.LinInterp, values, nil)
		iqr := stat.Quantile(0.75, stat.LinInterp, values, nil) - stat.Quantile(0.25, stat.LinInterp, values, nil)
		if iqr < MinScale {
			iqr = 1.0
		}
		s.scale[j] = iqr
	}
	return s, nil
}

// Apply transforms the fitted columns of t in place as (v - center) / scale.
// Other columns and row order are left untouched.
func (s *State) Apply(t *feature.Table) {
	for i := range t.Rows {
		for j, c := range s.columns {
			t.Rows[i].Values[c] = (t.Rows[i].Values[c] - s.center[j]) / s.scale[j]
		}
	}
}

// Transform returns the scaled value of v for column c.
func (s *State) Transform(c feature.Column, v float64) (float64, error) {
	j, err := s.index(c)
	if err != nil {
		return 0, err
	}
	return (v - s.center[j]) / s.scale[j], nil
}

// Inverse maps a scaled value of column c back to its original units.
func (s *State) Inverse(c feature.Column, v float64) (float64, error) {
	j, err := s.index(c)
	if err != nil {
		return 0, err
	}
	return v*s.scale[j] + s.center[j], nil
}

// Center returns the fitted median of column c.
func (s *State) Center(c feature.Column) (float64, error) {
	j, err := s.index(c)
	if err != nil {
		return 0, err
	}
	return s.center[j], nil
}

// Scale returns the fitted divisor of column c.
func (s *State) Scale(c feature.Column) (float64, error) {
	j, err := s.index(c)
	if err != nil {
		return 0, err
	}
	return s.scale[j], nil
}

// Columns returns the fitted columns in order.
func (s *State) Columns() []feature.Column {
	return append([]feature.Column(nil), s.columns...)
}

func (s *State) index(c feature.Column) (int, error) {
	for j, fc := range s.columns {
		if fc == c {
			return j, nil
		}
	}
	return 0, fmt.Errorf("scaler: column %s was not fitted", c)
}

type stateJSON struct {
	Columns []string  `json:"columns"`
	Center  []float64 `json:"center"`
	Scale   []float64 `json:"scale"`
}

// MarshalBinary encodes the state as an opaque blob.
func (s *State) MarshalBinary() ([]byte, error) {
	return json.Marshal(stateJSON{
		Columns: feature.Names(s.columns),
		Center:  s.center,
		Scale:   s.scale,
	})
}

// UnmarshalBinary restores a state produced by MarshalBinary.
func (s *State) UnmarshalBinary(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("scaler: decode state: %w", err)
	}
	if len(raw.Center) != len(raw.Columns) || len(raw.Scale) != len(raw.Columns) {
		return fmt.Errorf("scaler: decode state: %d columns, %d centers, %d scales",
			len(raw.Columns), len(raw.Center), len(raw.Scale))
	}
	cols := make([]feature.Column, len(raw.Columns))
	for i, name := range raw.Columns {
		c, err := feature.ParseColumn(name)
		if err != nil {
			return fmt.Errorf("scaler: decode state: %w", err)
		}
		cols[i] = c
	}
	s.columns, s.center, s.scale = cols, raw.Center, raw.Scale
	return nil
}
