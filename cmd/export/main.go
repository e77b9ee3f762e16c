// Package main exports bars from TimescaleDB into the CSV layout read by the csv data source.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/bar-forecast/internal/config"
	"github.com/your-org/bar-forecast/internal/datastore"
	"github.com/your-org/bar-forecast/internal/feature"
	"github.com/your-org/bar-forecast/pkg/logger"
)

const timeLayout = "2006-01-02 15:04:05.999999-07"

func main() {
	// --- Argument Parsing ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	startTimeStr := flag.String("start", "", "Start time for the export window (YYYY-MM-DD HH:MM:SS)")
	endTimeStr := flag.String("end", "", "End time for the export window (YYYY-MM-DD HH:MM:SS)")
	outDir := flag.String("out", "", "Directory for <symbol>.csv files; defaults to data.csv_dir")
	all := flag.Bool("all", false, "Export every symbol stored in the bars table")
	flag.Parse()

	start, err := parseFlagTime(*startTimeStr)
	if err != nil {
		logger.Fatalf("Invalid --start: %v", err)
	}
	end, err := parseFlagTime(*endTimeStr)
	if err != nil {
		logger.Fatalf("Invalid --end: %v", err)
	}

	// --- Config and Logger Setup ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration to get DB settings: %v", err)
	}
	logger.SetGlobalLogLevel(cfg.LogLevel)
	dir := *outDir
	if dir == "" {
		dir = cfg.Data.CSVDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Fatalf("Failed to create output directory: %v", err)
	}

	// --- Database Connection ---
	ctx := context.Background()
	dbpool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()
	source := datastore.NewTimescaleSource(dbpool)

	symbols := cfg.Symbols
	switch {
	case *all:
		if symbols, err = source.Symbols(ctx); err != nil {
			logger.Fatalf("Failed to list symbols: %v", err)
		}
	case flag.NArg() > 0:
		symbols = flag.Args()
	}
	logger.Infof("Exporting %d symbol(s) to %s...", len(symbols), dir)

	// --- Query and Write Data ---
	for _, sym := range symbols {
		bars, err := source.FetchBars(ctx, sym, start, end)
		if err != nil {
			logger.Errorf("Failed to fetch bars for %s: %v", sym, err)
			continue
		}
		path := filepath.Join(dir, sym+".csv")
		if err := writeFile(path, bars); err != nil {
			logger.Errorf("Failed to write %s: %v", path, err)
			continue
		}
		logger.Infof("Successfully exported %d bars for %s.", len(bars), sym)
	}
}

func parseFlagTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("could not parse time %q", s)
}

func writeFile(path string, bars []feature.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeBars(f, bars); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeBars writes the header and one record per bar.
func writeBars(w io.Writer, bars []feature.Bar) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, b := range bars {
		record := []string{
			b.Time.UTC().Format(timeLayout),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
