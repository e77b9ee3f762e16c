package datastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/bar-forecast/internal/feature"
)

const sampleCSV = `time,open,high,low,close,volume
2024-01-02 09:31:00+00,100.5,101,100,100.8,1200
2024-01-02T09:30:00Z,100,100.6,99.8,100.5,1000
not-a-time,1,1,1,1,1
2024-01-02 09:32:00,100.8,101.2,100.7,101.1,900
1704188040,101.1,101.3,100.9,101.0,800
2024-01-02 09:35:00,bad,1,1,1,1
`

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBarsFromCSV(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "AAPL.csv", sampleCSV)

	bars, err := LoadBarsFromCSV(path)
	require.NoError(t, err)
	require.Len(t, bars, 4, "unparseable rows are skipped")

	base := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	for i, b := range bars {
		assert.True(t, b.Time.Equal(base.Add(time.Duration(i)*time.Minute)), "row %d out of order: %s", i, b.Time)
	}
	assert.Equal(t, feature.Bar{Time: bars[0].Time, Open: 100, High: 100.6, Low: 99.8, Close: 100.5, Volume: 1000}, bars[0])
	assert.NoError(t, feature.ValidateBars(bars))
}

func TestLoadBarsFromCSV_Empty(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "empty.csv", "")
	bars, err := LoadBarsFromCSV(path)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestCSVSource_FetchBars(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL.csv", sampleCSV)
	src := NewCSVSource(dir)
	ctx := context.Background()

	start := time.Date(2024, 1, 2, 9, 31, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 9, 33, 0, 0, time.UTC)
	bars, err := src.FetchBars(ctx, "AAPL", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.True(t, bars[0].Time.Equal(start))

	all, err := src.FetchBars(ctx, "AAPL", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	missing, err := src.FetchBars(ctx, "MSFT", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestCSVSource_FetchBarsStreamErrors(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "AAPL.csv", sampleCSV)
	writeCSV(t, dir, "BROKEN.csv", "time,open,high,low,close,volume\n2024-01-02T09:30:00Z,1,1,1,1,1\n\"unterminated,1,1,1,1,1\n")
	src := NewCSVSource(dir)

	t.Run("読み込みエラーは伝播する", func(t *testing.T) {
		bars, err := src.FetchBars(context.Background(), "BROKEN", time.Time{}, time.Time{})
		assert.Error(t, err)
		assert.Nil(t, bars)
	})

	t.Run("キャンセル済みコンテキスト", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		bars, err := src.FetchBars(ctx, "AAPL", time.Time{}, time.Time{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, bars)
	})
}

func TestStreamBarsFromCSV(t *testing.T) {
	path := writeCSV(t, t.TempDir(), "AAPL.csv", sampleCSV)

	barCh, errCh := StreamBarsFromCSV(context.Background(), path)
	var got []feature.Bar
	for b := range barCh {
		got = append(got, b)
	}
	require.NoError(t, <-errCh)
	require.Len(t, got, 4)
	// Streaming keeps file order.
	assert.Equal(t, 100.5, got[0].Open)
	assert.Equal(t, 100.0, got[1].Open)
}

func TestStreamBarsFromCSV_MissingFile(t *testing.T) {
	barCh, errCh := StreamBarsFromCSV(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	for range barCh {
	}
	assert.Error(t, <-errCh)
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"2025-07-14 04:11:13.484971+00", time.Date(2025, 7, 14, 4, 11, 13, 484971000, time.UTC), false},
		{"2025-07-14T04:11:13Z", time.Date(2025, 7, 14, 4, 11, 13, 0, time.UTC), false},
		{"2025-07-14", time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC), false},
		{"0", time.Unix(0, 0).UTC(), false},
		{"yesterday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTime(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
