// Package search runs hyperparameter trials with median pruning.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Objective trains one configuration and returns its validation metric (lower is better).
// It should call Handle.Report after every epoch and return the error Report returns.
type Objective func(ctx context.Context, h *Handle) (float64, error)

// Handle is what an objective sees of its trial.
type Handle struct {
	Number int
	Params Params

	study  *Study
	trial  *Trial
	pruner Pruner
	last   float64
}

// Report records an intermediate value and returns ErrTrialPruned if the trial should stop.
func (h *Handle) Report(step int, value float64) error {
	h.study.report(h.trial, step, value)
	h.last = value
	if h.pruner.Prune(h.study, h.trial, step, value) {
		return fmt.Errorf("%w at step %d (value %v)", ErrTrialPruned, step, value)
	}
	return nil
}

// Observer is notified when a trial finishes.
type Observer interface {
	TrialFinished(t Trial)
}

// Config controls a search run.
type Config struct {
	Trials      int
	Parallelism int
	Seed        int64
}

// Harness samples configurations and runs them through an Objective.
type Harness struct {
	space    Space
	cfg      Config
	sampler  Sampler
	pruner   Pruner
	logger   *zap.Logger
	observer Observer
}

// Option configures a Harness.
type Option func(*Harness)

// WithPruner replaces the default MedianPruner.
func WithPruner(p Pruner) Option {
	return func(h *Harness) { h.pruner = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithObserver sets a trial observer.
func WithObserver(o Observer) Option {
	return func(h *Harness) { h.observer = o }
}

// NewHarness validates the space and returns a Harness.
func NewHarness(space Space, cfg Config, opts ...Option) (*Harness, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	if cfg.Trials <= 0 {
		return nil, fmt.Errorf("%w: trials must be positive, got %d", ErrInvalidSpace, cfg.Trials)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	h := &Harness{
		space:   space,
		cfg:     cfg,
		sampler: Sampler{Seed: cfg.Seed},
		pruner:  MedianPruner{StartupTrials: 1},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// Run executes every trial. A failing trial is recorded and never stops the others; the
// returned error is non-nil only when ctx is cancelled.
func (h *Harness) Run(ctx context.Context, obj Objective) (*Study, error) {
	study := NewStudy()
	var g errgroup.Group
	g.SetLimit(h.cfg.Parallelism)

	for n := 0; n < h.cfg.Trials; n++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			h.runTrial(ctx, study, n, obj)
			return nil
		})
	}
	_ = g.Wait()

	counts := study.Count()
	h.logger.Info("search finished",
		zap.Int("complete", counts[TrialComplete]),
		zap.Int("pruned", counts[TrialPruned]),
		zap.Int("failed", counts[TrialFailed]))
	return study, ctx.Err()
}

func (h *Harness) runTrial(ctx context.Context, study *Study, n int, obj Objective) {
	params := h.sampler.Sample(h.space, n)
	trial := study.start(n, params)
	handle := &Handle{
		Number: n,
		Params: params,
		study:  study,
		trial:  trial,
		pruner: h.pruner,
		last:   math.NaN(),
	}

	value, err := safeCall(ctx, obj, handle)

	var done Trial
	switch {
	case errors.Is(err, ErrTrialPruned):
		done = study.finish(trial, TrialPruned, handle.last, err)
	case err != nil:
		done = study.finish(trial, TrialFailed, math.NaN(), err)
	case math.IsNaN(value) || math.IsInf(value, 0):
		done = study.finish(trial, TrialFailed, value, fmt.Errorf("non-finite objective value %v", value))
	default:
		done = study.finish(trial, TrialComplete, value, nil)
	}

	h.logger.Info("trial finished",
		zap.Int("trial", n),
		zap.String("state", done.State.String()),
		zap.Float64("value", done.Value),
		zap.Int("d_model", params.DModel),
		zap.Int("heads", params.Heads),
		zap.Float64("learning_rate", params.LearningRate),
		zap.String("error", done.Err),
		zap.Duration("duration", done.Duration))
	if h.observer != nil {
		h.observer.TrialFinished(done)
	}
}

func safeCall(ctx context.Context, obj Objective, h *Handle) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("trial %d panicked: %v", h.Number, r)
		}
	}()
	return obj(ctx, h)
}
