// Package metrics exposes training, search and run outcomes to Prometheus.
package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/your-org/bar-forecast/internal/learning"
	"github.com/your-org/bar-forecast/internal/search"
)

// Recorder implements learning.Recorder, search.Observer and forecast.RunObserver.
type Recorder struct {
	batchLoss    prometheus.Histogram
	epochs       prometheus.Counter
	trainLoss    prometheus.Gauge
	valLoss      prometheus.Gauge
	gradNorm     prometheus.Gauge
	trials       *prometheus.CounterVec
	trialSeconds prometheus.Histogram
	runs         *prometheus.CounterVec
	runSeconds   *prometheus.HistogramVec
}

var (
	_ learning.Recorder = (*Recorder)(nil)
	_ search.Observer   = (*Recorder)(nil)
)

// New registers the collectors on reg. Use prometheus.DefaultRegisterer in binaries and
// a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		batchLoss: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecast_batch_loss",
			Help:    "Composite training loss per batch",
			Buckets: prometheus.ExponentialBuckets(1e-4, 4, 12),
		}),
		epochs: f.NewCounter(prometheus.CounterOpts{
			Name: "forecast_epochs_total",
			Help: "Total number of completed training epochs",
		}),
		trainLoss: f.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_train_loss",
			Help: "Mean training loss of the last completed epoch",
		}),
		valLoss: f.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_val_loss",
			Help: "Mean validation loss of the last completed epoch",
		}),
		gradNorm: f.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_grad_norm",
			Help: "Mean pre-clip gradient norm of the last completed epoch",
		}),
		trials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_search_trials_total",
			Help: "Total number of finished search trials",
		}, []string{"state"}),
		trialSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecast_search_trial_duration_seconds",
			Help:    "Duration of search trials in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_runs_total",
			Help: "Total number of symbol runs",
		}, []string{"status"}),
		runSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forecast_run_duration_seconds",
			Help:    "Duration of symbol runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"symbol"}),
	}
}

// ObserveBatch records one batch loss.
func (r *Recorder) ObserveBatch(loss float64) {
	r.batchLoss.Observe(loss)
}

// ObserveEpoch records the aggregates of one epoch. A NaN validation loss is not exported.
func (r *Recorder) ObserveEpoch(s learning.EpochStats) {
	r.epochs.Inc()
	r.trainLoss.Set(s.TrainLoss)
	if !math.IsNaN(s.ValLoss) {
		r.valLoss.Set(s.ValLoss)
	}
	r.gradNorm.Set(s.GradNorm)
}

// TrialFinished counts a trial by its terminal state.
func (r *Recorder) TrialFinished(t search.Trial) {
	r.trials.WithLabelValues(t.State.String()).Inc()
	r.trialSeconds.Observe(t.Duration.Seconds())
}

// RunFinished counts a symbol run by status.
func (r *Recorder) RunFinished(symbol, status string, d time.Duration) {
	r.runs.WithLabelValues(status).Inc()
	r.runSeconds.WithLabelValues(symbol).Observe(d.Seconds())
}
