package scaler

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/bar-forecast/internal/feature"
)

func tableOf(t *testing.T, closes, volumes []float64) *feature.Table {
	t.Helper()
	rows := make([]feature.Row, len(closes))
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i].Time = start.Add(time.Duration(i) * time.Minute)
		rows[i].Values[feature.Close] = closes[i]
		rows[i].Values[feature.Volume] = volumes[i]
		rows[i].Values[feature.RSI] = 50
	}
	table, err := feature.NewTable(rows)
	require.NoError(t, err)
	return table
}

func TestFitApply(t *testing.T) {
	table := tableOf(t, []float64{5, 1, 4, 2, 3}, []float64{7, 7, 7, 7, 7})
	state, err := Fit(table, []feature.Column{feature.Close, feature.Volume})
	require.NoError(t, err)

	// Linear interpolation of the empirical CDF: q25=1.25, q50=2.5, q75=3.75.
	center, _ := state.Center(feature.Close)
	scale, _ := state.Scale(feature.Close)
	assert.InDelta(t, 2.5, center, 1e-12)
	assert.InDelta(t, 2.5, scale, 1e-12)

	// Constant column: zero IQR falls back to 1.
	vcenter, _ := state.Center(feature.Volume)
	vscale, _ := state.Scale(feature.Volume)
	assert.Equal(t, 7.0, vcenter)
	assert.Equal(t, 1.0, vscale)

	state.Apply(table)
	assert.InDeltaSlice(t, []float64{1, -0.6, 0.6, -0.2, 0.2}, table.Column(feature.Close), 1e-12)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, table.Column(feature.Volume))
	assert.Equal(t, []float64{50, 50, 50, 50, 50}, table.Column(feature.RSI), "unselected columns are untouched")
}

func TestApplyOnlyIsDeterministic(t *testing.T) {
	closes := []float64{101.2, 99.8, 100.4, 150.0, 100.1, 100.9, 98.7, 100.0}
	volumes := []float64{10, 12, 9, 400, 11, 10, 13, 12}
	train := tableOf(t, closes, volumes)
	copyOfTrain := train.Clone()

	state, err := Fit(train, []feature.Column{feature.Close, feature.Volume})
	require.NoError(t, err)
	state.Apply(train)
	state.Apply(copyOfTrain)

	if diff := cmp.Diff(train.Rows, copyOfTrain.Rows); diff != "" {
		t.Errorf("apply-only differs from fit-then-apply (-want +got):\n%s", diff)
	}
}

func TestInverse(t *testing.T) {
	table := tableOf(t, []float64{10, 20, 30, 40}, []float64{1, 2, 3, 4})
	state, err := Fit(table, []feature.Column{feature.Close})
	require.NoError(t, err)

	for _, v := range []float64{-3, 0, 17.5, 1e6} {
		scaled, err := state.Transform(feature.Close, v)
		require.NoError(t, err)
		back, err := state.Inverse(feature.Close, scaled)
		require.NoError(t, err)
		assert.InDelta(t, v, back, 1e-9)
	}

	_, err = state.Inverse(feature.ATR, 1)
	assert.Error(t, err)
}

func TestFit_EmptyPartition(t *testing.T) {
	_, err := Fit(&feature.Table{}, feature.AllColumns())
	assert.ErrorIs(t, err, ErrEmptyPartition)
	assert.ErrorIs(t, err, feature.ErrInsufficientData)

	_, err = Fit(nil, feature.AllColumns())
	assert.ErrorIs(t, err, ErrEmptyPartition)
}

func TestFit_UnknownColumn(t *testing.T) {
	table := tableOf(t, []float64{1, 2}, []float64{1, 2})
	_, err := Fit(table, []feature.Column{feature.Column(100)})
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	table := tableOf(t, []float64{3, 9, 4, 1, 7, 2}, []float64{5, 8, 1, 3, 2, 9})
	cols := []feature.Column{feature.Close, feature.Volume}
	state, err := Fit(table, cols)
	require.NoError(t, err)

	blob, err := state.MarshalBinary()
	require.NoError(t, err)

	var restored State
	require.NoError(t, restored.UnmarshalBinary(blob))
	assert.Equal(t, cols, restored.Columns())

	a, b := table.Clone(), table.Clone()
	state.Apply(a)
	restored.Apply(b)
	assert.Equal(t, a.Rows, b.Rows)

	assert.Error(t, restored.UnmarshalBinary([]byte(`{"columns":["close"],"center":[],"scale":[1]}`)))
	assert.Error(t, restored.UnmarshalBinary([]byte(`{"columns":["nope"],"center":[1],"scale":[1]}`)))
	assert.Error(t, restored.UnmarshalBinary([]byte(`not json`)))
}
