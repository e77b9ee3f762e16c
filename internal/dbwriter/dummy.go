package dbwriter

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/search"
)

// nopWriter is a no-op implementation of the Repository interface.
// It is used when persistence is disabled.
type nopWriter struct {
	logger *zap.Logger
}

// NewNopWriter creates a writer that drops everything.
func NewNopWriter(l *zap.Logger) Repository {
	if l == nil {
		l = zap.NewNop()
	}
	l.Info("Persistence disabled, results will not be stored.")
	return &nopWriter{logger: l}
}

// SaveArtifacts does nothing.
func (d *nopWriter) SaveArtifacts(ctx context.Context, a Artifact) error {
	d.logger.Debug("Nop writer: SaveArtifacts called", zap.String("symbol", a.Symbol))
	return nil
}

// SaveTrials does nothing.
func (d *nopWriter) SaveTrials(ctx context.Context, runID uuid.UUID, symbol string, trials []search.Trial) error {
	d.logger.Debug("Nop writer: SaveTrials called", zap.String("symbol", symbol), zap.Int("count", len(trials)))
	return nil
}

// SaveEvaluation does nothing.
func (d *nopWriter) SaveEvaluation(ctx context.Context, e Evaluation) error {
	d.logger.Debug("Nop writer: SaveEvaluation called", zap.String("symbol", e.Symbol))
	return nil
}

// SavePredictions does nothing.
func (d *nopWriter) SavePredictions(ctx context.Context, runID uuid.UUID, symbol string, preds []evaluate.Prediction) error {
	return nil
}

// Close does nothing.
func (d *nopWriter) Close() {
	d.logger.Debug("Nop writer: Close called")
}
