package datastore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/your-org/bar-forecast/internal/feature"
	"github.com/your-org/bar-forecast/pkg/logger"
)

// csvColumns is the expected header: time,open,high,low,close,volume
const csvColumns = 6

// CSVSource reads one file per symbol, <Dir>/<symbol>.csv.
type CSVSource struct {
	Dir string
}

// NewCSVSource creates a CSVSource rooted at dir.
func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{Dir: dir}
}

// FetchBars streams the symbol's file and keeps bars in [start, end).
// A missing file is reported as no data.
func (s *CSVSource) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]feature.Bar, error) {
	path := filepath.Join(s.Dir, symbol+".csv")
	bars, err := collectBars(ctx, path, func(b feature.Bar) bool { return inRange(b.Time, start, end) })
	if errors.Is(err, os.ErrNotExist) {
		logger.Warnf("No CSV file for %s at %s", symbol, path)
		return nil, nil
	}
	return bars, err
}

// LoadBarsFromCSV reads an entire CSV file into memory and returns its bars sorted by time.
// Rows that cannot be parsed are skipped with a warning.
func LoadBarsFromCSV(filePath string) ([]feature.Bar, error) {
	return collectBars(context.Background(), filePath, nil)
}

// collectBars drains StreamBarsFromCSV, keeping the bars accepted by keep (all when nil),
// and sorts them by time.
func collectBars(ctx context.Context, filePath string, keep func(feature.Bar) bool) ([]feature.Bar, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	barCh, errCh := StreamBarsFromCSV(ctx, filePath)
	bars := []feature.Bar{}
	for b := range barCh {
		if keep == nil || keep(b) {
			bars = append(bars, b)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// StreamBarsFromCSV streams bars through a channel in file order.
// The function returns a channel for bars and a channel for errors.
func StreamBarsFromCSV(ctx context.Context, filePath string) (<-chan feature.Bar, <-chan error) {
	barCh := make(chan feature.Bar)
	errCh := make(chan error, 1)

	go func() {
		defer close(barCh)
		defer close(errCh)

		file, err := os.Open(filePath)
		if err != nil {
			errCh <- fmt.Errorf("failed to open csv file: %w", err)
			return
		}
		defer file.Close()

		reader := csv.NewReader(file)
		if _, err := reader.Read(); err != nil {
			if err != io.EOF {
				errCh <- fmt.Errorf("failed to read csv header: %w", err)
			}
			return // Empty file is not an error
		}

		total := 0
		for {
			record, err := reader.Read()
			if err == io.EOF {
				logger.Infof("Successfully streamed %d bars from %s", total, filePath)
				return
			}
			if err != nil {
				errCh <- fmt.Errorf("failed to read csv record: %w", err)
				return
			}
			bar, err := parseBar(record)
			if err != nil {
				logger.Warnf("Skipping record: %v", err)
				continue
			}
			select {
			case barCh <- bar:
				total++
			case <-ctx.Done():
				logger.Info("CSV streaming cancelled by context.")
				return
			}
		}
	}()

	return barCh, errCh
}

func parseBar(record []string) (feature.Bar, error) {
	if len(record) != csvColumns {
		return feature.Bar{}, fmt.Errorf("invalid number of columns: expected %d, got %d", csvColumns, len(record))
	}
	ts, err := parseTime(record[0])
	if err != nil {
		return feature.Bar{}, err
	}
	var v [5]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return feature.Bar{}, fmt.Errorf("column %d: %w", i+1, err)
		}
	}
	return feature.Bar{Time: ts, Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4]}, nil
}

func parseTime(timeStr string) (time.Time, error) {
	// Postgres export format first, e.g. "2025-07-14 04:11:13.484971+00".
	layouts := []string{"2006-01-02 15:04:05.999999-07", time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, timeStr); err == nil {
			return t, nil
		}
	}
	if sec, err := strconv.ParseInt(timeStr, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("could not parse time '%s' with any known format", timeStr)
}
