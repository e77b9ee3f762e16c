// Package main prints the latest stored evaluation of every symbol.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/bar-forecast/internal/config"
	"github.com/your-org/bar-forecast/internal/report"
	"github.com/your-org/bar-forecast/pkg/logger"
)

// latestFetcher is satisfied by *report.Service.
type latestFetcher interface {
	FetchLatest(ctx context.Context) ([]report.Row, error)
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	watch := flag.Duration("watch", 0, "Reprint the report at this interval (0 prints once)")
	flag.Parse()

	// --- Load Configuration ---
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// --- Logger Setup ---
	l := logger.NewLogger(cfg.LogLevel)

	// --- Database Connection ---
	ctx := context.Background()
	dbpool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		l.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	svc := report.NewService(dbpool)
	if err := printLatest(ctx, svc, os.Stdout); err != nil {
		l.Errorf("Failed to print report: %v", err)
	}
	if *watch <= 0 {
		return
	}

	ticker := time.NewTicker(*watch)
	defer ticker.Stop()
	l.Infof("Report watcher started. Will run every %v.", *watch)
	for range ticker.C {
		if err := printLatest(ctx, svc, os.Stdout); err != nil {
			l.Errorf("Failed to print report: %v", err)
		}
	}
}

// printLatest fetches the latest evaluations and renders them.
func printLatest(ctx context.Context, svc latestFetcher, w io.Writer) error {
	rows, err := svc.FetchLatest(ctx)
	if err != nil {
		return err
	}
	return report.Render(w, rows)
}
