package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/bar-forecast/internal/datastore"
	"github.com/your-org/bar-forecast/internal/feature"
)

func TestWriteBars_RoundTripsThroughCSVSource(t *testing.T) {
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	bars := []feature.Bar{
		{Time: start, Open: 100, High: 100.5, Low: 99.75, Close: 100.25, Volume: 1200},
		{Time: start.Add(time.Minute).Add(123456 * time.Microsecond), Open: 100.25, High: 101, Low: 100, Close: 100.9, Volume: 800},
	}
	path := filepath.Join(t.TempDir(), "AAPL.csv")
	require.NoError(t, writeFile(path, bars))

	got, err := datastore.LoadBarsFromCSV(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range bars {
		assert.True(t, bars[i].Time.Equal(got[i].Time), "row %d: %s != %s", i, bars[i].Time, got[i].Time)
		got[i].Time = bars[i].Time
	}
	assert.Equal(t, bars, got)
}

func TestParseFlagTime(t *testing.T) {
	ts, err := parseFlagTime("2024-01-02 09:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), ts)

	ts, err = parseFlagTime("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	_, err = parseFlagTime("tomorrow")
	assert.Error(t, err)
}
