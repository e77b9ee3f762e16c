package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/bar-forecast/internal/learning"
	"github.com/your-org/bar-forecast/internal/search"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.ObserveBatch(0.5)
	r.ObserveBatch(0.25)
	r.ObserveEpoch(learning.EpochStats{Epoch: 1, TrainLoss: 0.375, ValLoss: 0.4, GradNorm: 1.5})
	r.ObserveEpoch(learning.EpochStats{Epoch: 2, TrainLoss: 0.3, ValLoss: math.NaN(), GradNorm: 1.1})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.epochs))
	assert.Equal(t, 0.3, testutil.ToFloat64(r.trainLoss))
	assert.Equal(t, 0.4, testutil.ToFloat64(r.valLoss), "NaN validation loss keeps the last value")
	assert.Equal(t, 1.1, testutil.ToFloat64(r.gradNorm))

	r.TrialFinished(search.Trial{State: search.TrialComplete, Duration: time.Second})
	r.TrialFinished(search.Trial{State: search.TrialPruned, Duration: time.Second})
	r.TrialFinished(search.Trial{State: search.TrialPruned, Duration: time.Second})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.trials.WithLabelValues("pruned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trials.WithLabelValues("complete")))

	r.RunFinished("AAPL", "succeeded", 3*time.Second)
	r.RunFinished("MSFT", "skipped", time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("skipped")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
