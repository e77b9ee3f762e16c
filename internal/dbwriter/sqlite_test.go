package dbwriter

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/search"
)

func newSQLite(t *testing.T) *SQLiteWriter {
	t.Helper()
	w, err := NewSQLiteWriter(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestSQLiteWriter_RoundTrip(t *testing.T) {
	w := newSQLite(t)
	ctx := context.Background()
	runID := uuid.New()

	a := Artifact{RunID: runID, Symbol: "AAPL", ModelVersion: "v1", Scaler: []byte("s"), Params: []byte("p"), CreatedAt: time.Now()}
	require.NoError(t, w.SaveArtifacts(ctx, a))
	a.ModelVersion = "v2"
	require.NoError(t, w.SaveArtifacts(ctx, a), "second save upserts")

	var version string
	var params []byte
	require.NoError(t, w.DB().QueryRow(`SELECT model_version, params FROM model_artifacts WHERE run_id = ?`, runID.String()).
		Scan(&version, &params))
	assert.Equal(t, "v2", version)
	assert.Equal(t, []byte("p"), params)

	trials := []search.Trial{
		{ID: uuid.New(), Number: 0, State: search.TrialComplete, Value: 1.5, Intermediate: map[int]float64{1: 2.5}},
		{ID: uuid.New(), Number: 1, State: search.TrialFailed, Value: math.NaN(), Err: "numeric instability"},
	}
	require.NoError(t, w.SaveTrials(ctx, runID, "AAPL", trials))

	var value sql.NullFloat64
	require.NoError(t, w.DB().QueryRow(`SELECT value FROM search_trials WHERE number = 1`).Scan(&value))
	assert.False(t, value.Valid, "NaN must be stored as NULL")

	require.NoError(t, w.SaveEvaluation(ctx, Evaluation{
		RunID: runID, Symbol: "AAPL", Time: time.Now(), Status: "succeeded",
		Report: evaluate.Report{Count: 2, MSE: 0.25, R2: math.NaN()},
	}))
	var mse float64
	var r2 sql.NullFloat64
	require.NoError(t, w.DB().QueryRow(`SELECT mse, r2 FROM evaluations WHERE symbol = 'AAPL'`).Scan(&mse, &r2))
	assert.Equal(t, 0.25, mse)
	assert.False(t, r2.Valid)

	require.NoError(t, w.SavePredictions(ctx, runID, "AAPL", samplePredictions(4)))
	var n int
	require.NoError(t, w.DB().QueryRow(`SELECT COUNT(*) FROM predictions WHERE run_id = ?`, runID.String()).Scan(&n))
	assert.Equal(t, 4, n)
}

func TestSQLiteWriter_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.db")
	w, err := NewSQLiteWriter(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.SavePredictions(context.Background(), uuid.New(), "X", samplePredictions(1)))
	w.Close()

	// reopening applies the schema idempotently
	w2, err := NewSQLiteWriter(path, nil)
	require.NoError(t, err)
	defer w2.Close()
	var n int
	require.NoError(t, w2.DB().QueryRow(`SELECT COUNT(*) FROM predictions`).Scan(&n))
	assert.Equal(t, 1, n)
}
