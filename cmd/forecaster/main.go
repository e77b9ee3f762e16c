// Package main is the entry point of the bar forecaster.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/your-org/bar-forecast/internal/config"
	"github.com/your-org/bar-forecast/internal/csvwriter"
	"github.com/your-org/bar-forecast/internal/datastore"
	"github.com/your-org/bar-forecast/internal/dbwriter"
	"github.com/your-org/bar-forecast/internal/feature"
	"github.com/your-org/bar-forecast/internal/forecast"
	"github.com/your-org/bar-forecast/internal/http/handler"
	"github.com/your-org/bar-forecast/internal/metrics"
	"github.com/your-org/bar-forecast/internal/report"
	"github.com/your-org/bar-forecast/pkg/logger"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred flushes happen before exit.
func run() int {
	// --- Configuration ---
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	serve := flag.Bool("serve", false, "Keep the HTTP server running after the batch finishes")
	showTrials := flag.Bool("trials", false, "Print the search history of every symbol")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// --- Logger ---
	logger.SetGlobalLogLevel(cfg.LogLevel)
	defer logger.Sync()
	zl := logger.L()
	logger.Infof("Loaded configuration from: %s", *configPath)
	logger.Infof("Symbols: %v", cfg.Symbols)

	// --- Data source ---
	source, closeSource, err := openSource(ctx, cfg)
	if err != nil {
		logger.Errorf("Failed to open bar source: %v", err)
		return 1
	}
	defer closeSource()

	// --- Persistence ---
	repo, err := dbwriter.Open(ctx, cfg, zl)
	if err != nil {
		logger.Errorf("Failed to open storage: %v", err)
		return 1
	}
	defer repo.Close()

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	runner := forecast.NewRunner(cfg,
		forecast.WithLogger(zl),
		forecast.WithRepository(repo),
		forecast.WithRecorder(rec),
		forecast.WithTrialObserver(rec),
		forecast.WithRunObserver(rec))

	// --- HTTP server (optional) ---
	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.NewRouter(runner, reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Infof("HTTP server starting on %s", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("HTTP server failed: %v", err)
			}
		}()
	}

	// --- Run ---
	bars, fetchFailed := loadBars(ctx, source, cfg, zl)
	results := runner.RunAll(ctx, bars)

	if dir := cfg.Output.PredictionsDir; dir != "" {
		for _, res := range results {
			if res.Status != forecast.Succeeded {
				continue
			}
			path, err := csvwriter.WriteFile(dir, res.Symbol, res.Predictions, zl)
			if err != nil {
				logger.Errorf("Failed to write predictions for %s: %v", res.Symbol, err)
				continue
			}
			logger.Infof("Predictions for %s written to %s", res.Symbol, path)
		}
	}

	if err := report.Render(os.Stdout, report.FromResults(results)); err != nil {
		logger.Warnf("Nothing to report: %v", err)
	}
	if *showTrials {
		for _, res := range results {
			if res.Study == nil {
				continue
			}
			fmt.Fprintf(os.Stdout, "\n%s search history\n", res.Symbol)
			if err := report.RenderTrials(os.Stdout, res.Study.Trials()); err != nil {
				logger.Errorf("Failed to render trials for %s: %v", res.Symbol, err)
			}
		}
	}

	if srv != nil {
		if *serve {
			logger.Info("Batch finished. Serving results until interrupted.")
			<-ctx.Done()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("HTTP server shutdown failed: %v", err)
		}
	}

	failed := len(fetchFailed)
	for _, res := range results {
		if res.Status == forecast.Failed {
			failed++
		}
	}
	if failed > 0 {
		logger.Errorf("%d symbol(s) failed.", failed)
		return 1
	}
	logger.Info("Forecaster finished.")
	return 0
}

// openSource returns the configured BarSource and a function releasing its resources.
func openSource(ctx context.Context, cfg *config.Config) (datastore.BarSource, func(), error) {
	switch cfg.Data.Source {
	case "timescale":
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		return datastore.NewTimescaleSource(pool), pool.Close, nil
	default:
		return datastore.NewCSVSource(cfg.Data.CSVDir), func() {}, nil
	}
}

// loadBars fetches every configured symbol. Symbols whose fetch fails are left out of the
// batch and returned separately.
func loadBars(ctx context.Context, src datastore.BarSource, cfg *config.Config, zl *zap.Logger) (map[string][]feature.Bar, []string) {
	out := make(map[string][]feature.Bar, len(cfg.Symbols))
	var failed []string
	for _, sym := range cfg.Symbols {
		bars, err := src.FetchBars(ctx, sym, cfg.Data.Start, cfg.Data.End)
		if err != nil {
			zl.Error("failed to fetch bars", zap.String("symbol", sym), zap.Error(err))
			failed = append(failed, sym)
			continue
		}
		zl.Info("bars loaded", zap.String("symbol", sym), zap.Int("bars", len(bars)))
		out[sym] = bars
	}
	return out, failed
}
