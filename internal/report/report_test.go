package report

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/forecast"
	"github.com/your-org/bar-forecast/internal/search"
)

func ptr(v float64) *float64 { return &v }

func TestService_FetchLatest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	ts := time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT symbol, run_id, time, status, mse, mape, baseline_mse, skill_score FROM v_latest_evaluations").
		WillReturnRows(pgxmock.NewRows([]string{"symbol", "run_id", "time", "status", "mse", "mape", "baseline_mse", "skill_score"}).
			AddRow("AAPL", id, ts, "succeeded", ptr(0.04), ptr(0.12), ptr(0.05), ptr(0.2)).
			AddRow("MSFT", id, ts, "succeeded", ptr(0.09), ptr(0.3), ptr(0.0), nil))

	rows, err := NewService(mock).FetchLatest(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "AAPL", rows[0].Symbol)
	assert.Equal(t, id, rows[0].RunID)
	assert.Equal(t, 0.2, rows[0].SkillScore)
	assert.True(t, math.IsNaN(rows[1].SkillScore), "NULL skill score reads as NaN")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_FetchLatestError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("relation does not exist")
	mock.ExpectQuery("v_latest_evaluations").WillReturnError(boom)
	_, err = NewService(mock).FetchLatest(context.Background())
	assert.ErrorIs(t, err, boom)
}

func sampleResults() []forecast.Result {
	return []forecast.Result{
		{
			Symbol:     "AAPL",
			Status:     forecast.Succeeded,
			Report:     evaluate.Report{MSE: 0.04, MAPE: 0.12},
			Baseline:   evaluate.Report{MSE: 0.05},
			SkillScore: 0.2,
		},
		{
			Symbol:     "MSFT",
			Status:     forecast.Succeeded,
			Report:     evaluate.Report{MSE: 0.09, MAPE: 0.3},
			Baseline:   evaluate.Report{MSE: 0.06},
			SkillScore: -0.5,
		},
		{Symbol: "TINY", Status: forecast.Skipped, Reason: "insufficient data"},
		{Symbol: "BAD", Status: forecast.Failed, Reason: "numeric instability"},
	}
}

func TestFromResultsAndSummarize(t *testing.T) {
	rows := FromResults(sampleResults())
	require.Len(t, rows, 4)
	assert.Equal(t, 0.04, rows[0].MSE)
	assert.True(t, math.IsNaN(rows[2].MSE), "skipped runs carry no metrics")
	assert.Equal(t, "insufficient data", rows[2].Reason)

	s := Summarize(rows)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.BeatBaseline)
	assert.InDelta(t, -0.15, s.MeanSkill, 1e-12)

	assert.True(t, math.IsNaN(Summarize(nil).MeanSkill))
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FromResults(sampleResults())))
	out := buf.String()

	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "0.04")
	assert.Contains(t, out, "numeric instability")
	assert.Contains(t, out, "succeeded: 2  skipped: 1  failed: 1  beat baseline: 1  mean skill: -0.15")

	assert.ErrorIs(t, Render(&buf, nil), ErrNoRows)
}

func TestRenderTrials(t *testing.T) {
	var buf bytes.Buffer
	trials := []search.Trial{
		{Number: 0, State: search.TrialComplete, Value: 1.25, Params: search.Params{DModel: 16, Heads: 2, LearningRate: 0.001}, Intermediate: map[int]float64{1: 2, 2: 1.25}},
		{Number: 1, State: search.TrialPruned, Value: 9, Params: search.Params{DModel: 8, Heads: 1, LearningRate: 0.01}},
		{Number: 2, State: search.TrialFailed, Value: math.NaN()},
	}
	require.NoError(t, RenderTrials(&buf, trials))
	out := buf.String()
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "pruned")
	assert.Contains(t, out, "1.00e-03")
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0.1235", format(0.123456, 4))
	assert.Equal(t, "-", format(math.NaN(), 4))
	assert.Equal(t, "-", format(math.Inf(1), 4))
}
