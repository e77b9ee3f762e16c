package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/bar-forecast/internal/feature"
)

// indexTable stores the row index in every column so windows are easy to audit.
func indexTable(t *testing.T, n int) *feature.Table {
	t.Helper()
	start := time.Date(2024, 5, 6, 9, 30, 0, 0, time.UTC)
	rows := make([]feature.Row, n)
	for i := range rows {
		rows[i].Time = start.Add(time.Duration(i) * time.Minute)
		for c := range rows[i].Values {
			rows[i].Values[c] = float64(i)
		}
		rows[i].Values[feature.Close] = 100 + 0.1*float64(i)
	}
	table, err := feature.NewTable(rows)
	require.NoError(t, err)
	return table
}

var cols = []feature.Column{feature.Open, feature.Volume, feature.CloseLag1}

func TestBoundary(t *testing.T) {
	trainEnd, err := Boundary(200, 10, 0.8)
	require.NoError(t, err)
	assert.Equal(t, 152, trainEnd)

	_, err = Boundary(200, 0, 0.8)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Boundary(200, 10, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Boundary(200, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = Boundary(10, 10, 0.8)
	assert.ErrorIs(t, err, feature.ErrInsufficientData)
}

func TestSplit_EndToEndCounts(t *testing.T) {
	table := indexTable(t, 200)
	trainEnd, err := Boundary(table.Len(), 10, 0.8)
	require.NoError(t, err)

	train, test, err := Split(table, trainEnd, 10, feature.Close, cols)
	require.NoError(t, err)

	assert.Equal(t, 152, train.Len())
	assert.Equal(t, (200-10)-152, test.Len())
	assert.Equal(t, 38, test.Len())

	for _, s := range train.Samples {
		assert.LessOrEqual(t, s.TargetIndex, trainEnd+10-1, "training target crosses the boundary")
	}
	for _, s := range test.Samples {
		assert.GreaterOrEqual(t, s.Start, trainEnd, "test window starts before the boundary")
	}
	assert.Equal(t, trainEnd, test.Samples[0].Start)
	assert.Equal(t, 199, test.Samples[test.Len()-1].TargetIndex)
}

func TestBuild_WindowsAndTargets(t *testing.T) {
	for _, tc := range []struct{ count, length int }{{30, 5}, {11, 10}, {60, 1}} {
		table := indexTable(t, tc.count)
		ds, err := Build(table, 0, table.Len(), tc.length, feature.Close, cols)
		require.NoError(t, err)
		require.Equal(t, tc.count-tc.length, ds.Len())
		assert.Equal(t, tc.length, ds.Length)
		assert.Equal(t, len(cols), ds.NumFeatures)

		for i, s := range ds.Samples {
			assert.Equal(t, i, s.Start, "order must match input order")
			assert.Equal(t, i+tc.length, s.TargetIndex)
			assert.Equal(t, table.Rows[i+tc.length].Get(feature.Close), s.Target)
			assert.Equal(t, table.Rows[i+tc.length].Time, s.Time)
			require.Len(t, s.Features, tc.length)
			for k, row := range s.Features {
				assert.Equal(t, []float64{float64(i + k), float64(i + k), float64(i + k)}, row)
			}
		}
		assert.Equal(t, ds.Targets()[0], ds.Samples[0].Target)
		assert.Len(t, ds.Inputs(), ds.Len())
	}
}

func TestBuild_NoWindows(t *testing.T) {
	table := indexTable(t, 10)
	_, err := Build(table, 0, 10, 10, feature.Close, cols)
	assert.ErrorIs(t, err, feature.ErrInsufficientData)
	_, err = Build(table, 0, 10, 0, feature.Close, cols)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSplit_Invalid(t *testing.T) {
	table := indexTable(t, 50)
	_, _, err := Split(table, 45, 10, feature.Close, cols)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, _, err = Split(table, 10, 10, feature.Close, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// A boundary at the very end leaves the test partition without a window.
	_, _, err = Split(table, 40, 10, feature.Close, cols)
	assert.ErrorIs(t, err, feature.ErrInsufficientData)
}

func TestTail(t *testing.T) {
	table := indexTable(t, 30)
	ds, err := Build(table, 0, 30, 5, feature.Close, cols)
	require.NoError(t, err)

	head, tail, err := ds.Tail(0.2)
	require.NoError(t, err)
	assert.Equal(t, 20, head.Len())
	assert.Equal(t, 5, tail.Len())
	assert.Equal(t, head.Samples[head.Len()-1].Start+1, tail.Samples[0].Start)

	_, _, err = ds.Tail(0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	one, err := Build(table, 0, 6, 5, feature.Close, cols)
	require.NoError(t, err)
	_, _, err = one.Tail(0.5)
	assert.ErrorIs(t, err, feature.ErrInsufficientData)
}
