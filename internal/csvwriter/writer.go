// Package csvwriter exports aligned predictions for plotting tools.
package csvwriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/bar-forecast/internal/evaluate"
)

// Header is the first row of every predictions file.
var Header = []string{"time", "actual", "predicted", "residual"}

// PredictionWriter writes (time, actual, predicted, residual) rows to one file.
type PredictionWriter struct {
	file   *os.File
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
	rows   int
}

// NewPredictionWriter creates the file, its parent directory and the header row.
func NewPredictionWriter(filePath string, logger *zap.Logger) (*PredictionWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(Header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	return &PredictionWriter{
		file:   file,
		writer: writer,
		logger: logger,
	}, nil
}

// Write appends predictions in the given order.
func (w *PredictionWriter) Write(preds []evaluate.Prediction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range preds {
		record := []string{
			p.Time.UTC().Format(time.RFC3339),
			formatFloat(p.Actual),
			formatFloat(p.Predicted),
			formatFloat(p.Residual),
		}
		if err := w.writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record to CSV: %w", err)
		}
		w.rows++
	}
	return nil
}

// Flush flushes any buffered data to the underlying file.
func (w *PredictionWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the file.
func (w *PredictionWriter) Close() error {
	if err := w.Flush(); err != nil {
		w.file.Close()
		return err
	}
	w.logger.Debug("predictions written", zap.String("file", w.file.Name()), zap.Int("rows", w.rows))
	return w.file.Close()
}

// WriteFile writes one symbol's predictions to <dir>/<symbol>_predictions.csv and returns the path.
func WriteFile(dir, symbol string, preds []evaluate.Prediction, logger *zap.Logger) (string, error) {
	path := filepath.Join(dir, symbol+"_predictions.csv")
	w, err := NewPredictionWriter(path, logger)
	if err != nil {
		return "", err
	}
	if err := w.Write(preds); err != nil {
		w.file.Close()
		return "", err
	}
	return path, w.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
