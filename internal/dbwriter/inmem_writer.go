package dbwriter

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/search"
)

// InMemWriter is an in-memory implementation of the Repository interface for testing.
type InMemWriter struct {
	mu          sync.RWMutex
	Artifacts   []Artifact
	Trials      map[string][]search.Trial
	Evaluations []Evaluation
	Predictions map[string][]evaluate.Prediction
	IsClosed    bool
}

// NewInMemWriter creates a new InMemWriter.
func NewInMemWriter() *InMemWriter {
	return &InMemWriter{
		Artifacts:   make([]Artifact, 0),
		Trials:      make(map[string][]search.Trial),
		Evaluations: make([]Evaluation, 0),
		Predictions: make(map[string][]evaluate.Prediction),
	}
}

// SaveArtifacts appends an artifact to the in-memory slice.
func (w *InMemWriter) SaveArtifacts(ctx context.Context, a Artifact) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Artifacts = append(w.Artifacts, a)
	return nil
}

// SaveTrials stores trials keyed by symbol.
func (w *InMemWriter) SaveTrials(ctx context.Context, runID uuid.UUID, symbol string, trials []search.Trial) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Trials[symbol] = append(w.Trials[symbol], trials...)
	return nil
}

// SaveEvaluation appends an evaluation to the in-memory slice.
func (w *InMemWriter) SaveEvaluation(ctx context.Context, e Evaluation) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Evaluations = append(w.Evaluations, e)
	return nil
}

// SavePredictions stores predictions keyed by symbol.
func (w *InMemWriter) SavePredictions(ctx context.Context, runID uuid.UUID, symbol string, preds []evaluate.Prediction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Predictions[symbol] = append(w.Predictions[symbol], preds...)
	return nil
}

// Close marks the writer as closed.
func (w *InMemWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.IsClosed = true
}

// Latest returns the most recent evaluation for symbol.
func (w *InMemWriter) Latest(symbol string) (Evaluation, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for i := len(w.Evaluations) - 1; i >= 0; i-- {
		if w.Evaluations[i].Symbol == symbol {
			return w.Evaluations[i], true
		}
	}
	return Evaluation{}, false
}

// Clear resets all the in-memory state.
func (w *InMemWriter) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Artifacts = make([]Artifact, 0)
	w.Trials = make(map[string][]search.Trial)
	w.Evaluations = make([]Evaluation, 0)
	w.Predictions = make(map[string][]evaluate.Prediction)
	w.IsClosed = false
}
