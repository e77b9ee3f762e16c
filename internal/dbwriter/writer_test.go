package dbwriter

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/search"
)

// TestWriters_ImplementRepository は各ライターがRepositoryを実装していることを確認します。
func TestWriters_ImplementRepository(t *testing.T) {
	assert.Implements(t, (*Repository)(nil), new(TimescaleWriter))
	assert.Implements(t, (*Repository)(nil), new(SQLiteWriter))
	assert.Implements(t, (*Repository)(nil), new(InMemWriter))
	assert.Implements(t, (*Repository)(nil), NewNopWriter(zap.NewNop()))
}

func samplePredictions(n int) []evaluate.Prediction {
	t0 := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	out := make([]evaluate.Prediction, n)
	for i := range out {
		out[i] = evaluate.NewPrediction(t0.Add(time.Duration(i)*time.Minute), 100+float64(i), 100.5+float64(i))
	}
	return out
}

func TestTimescaleWriter_SavePredictionsFlushesInBatches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	writer, err := NewTimescaleWriter(mock, 2, zap.NewNop())
	require.NoError(t, err)

	// 5 rows with batch size 2: two flushes while saving, one on Close.
	mock.ExpectCopyFrom(pgx.Identifier{"predictions"}, predictionColumns).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"predictions"}, predictionColumns).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"predictions"}, predictionColumns).WillReturnResult(1)
	mock.ExpectClose()

	require.NoError(t, writer.SavePredictions(context.Background(), uuid.New(), "AAPL", samplePredictions(5)))
	writer.Close()

	require.NoError(t, mock.ExpectationsWereMet(), "there were unfulfilled expectations")
}

func TestTimescaleWriter_SaveArtifacts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	writer, err := NewTimescaleWriter(mock, 10, zap.NewNop())
	require.NoError(t, err)

	a := Artifact{
		RunID:        uuid.New(),
		Symbol:       "AAPL",
		ModelVersion: "model-1",
		ModelConfig:  []byte(`{"d_model":8}`),
		Scaler:       []byte("scaler"),
		Params:       []byte("params"),
		CreatedAt:    time.Now(),
	}
	mock.ExpectExec("INSERT INTO model_artifacts").
		WithArgs(a.RunID.String(), a.Symbol, a.ModelVersion, string(a.ModelConfig), a.Scaler, a.Params, a.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, writer.SaveArtifacts(context.Background(), a))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleWriter_SaveEvaluationError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	writer, err := NewTimescaleWriter(mock, 10, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO evaluations").WillReturnError(errors.New("connection reset"))

	err = writer.SaveEvaluation(context.Background(), Evaluation{
		RunID:  uuid.New(),
		Symbol: "AAPL",
		Time:   time.Now(),
		Status: "succeeded",
		Report: evaluate.Report{Count: 3, MSE: 0.5, MAPE: math.NaN()},
	})
	assert.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleWriter_SaveTrials(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	writer, err := NewTimescaleWriter(mock, 10, zap.NewNop())
	require.NoError(t, err)

	trials := []search.Trial{
		{ID: uuid.New(), Number: 0, State: search.TrialComplete, Value: 1.2, Intermediate: map[int]float64{1: 2}},
		{ID: uuid.New(), Number: 1, State: search.TrialFailed, Value: math.NaN(), Err: "numeric instability"},
	}
	mock.ExpectCopyFrom(pgx.Identifier{"search_trials"}, trialColumns).WillReturnResult(2)

	require.NoError(t, writer.SaveTrials(context.Background(), uuid.New(), "AAPL", trials))
	require.NoError(t, writer.SaveTrials(context.Background(), uuid.New(), "AAPL", nil), "empty history is a no-op")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewTimescaleWriter_NilPool(t *testing.T) {
	_, err := NewTimescaleWriter(nil, 1, nil)
	assert.Error(t, err)
}

func TestPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", pgx5URL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://h/db", pgx5URL("postgresql://h/db"))
	assert.Equal(t, "pgx5://h/db", pgx5URL("pgx5://h/db"))
}

func TestToTrialRow_NaNBecomesNull(t *testing.T) {
	r, err := toTrialRow(search.Trial{Value: math.NaN(), Intermediate: map[int]float64{0: math.Inf(1), 1: 3}})
	require.NoError(t, err)
	assert.Nil(t, r.value)
	assert.JSONEq(t, `{"0":null,"1":3}`, string(r.intermediate))
}

func TestInMemWriter(t *testing.T) {
	w := NewInMemWriter()
	ctx := context.Background()
	require.NoError(t, w.SaveEvaluation(ctx, Evaluation{Symbol: "A", Status: "failed"}))
	require.NoError(t, w.SaveEvaluation(ctx, Evaluation{Symbol: "A", Status: "succeeded"}))
	require.NoError(t, w.SavePredictions(ctx, uuid.New(), "A", samplePredictions(3)))

	latest, ok := w.Latest("A")
	require.True(t, ok)
	assert.Equal(t, "succeeded", latest.Status)
	_, ok = w.Latest("B")
	assert.False(t, ok)
	assert.Len(t, w.Predictions["A"], 3)

	w.Close()
	assert.True(t, w.IsClosed)
	w.Clear()
	assert.False(t, w.IsClosed)
	assert.Empty(t, w.Evaluations)
}
