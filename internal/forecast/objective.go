package forecast

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/your-org/bar-forecast/internal/config"
	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/feature"
	"github.com/your-org/bar-forecast/internal/learning"
	"github.com/your-org/bar-forecast/internal/scaler"
	"github.com/your-org/bar-forecast/internal/search"
	"github.com/your-org/bar-forecast/internal/window"
)

// SpaceOf converts the configured search space.
func SpaceOf(c config.SpaceConfig) search.Space {
	return search.Space{
		Heads:        search.IntRange{Min: c.Heads.Min, Max: c.Heads.Max},
		HeadDimMult:  search.IntRange{Min: c.HeadDimMult.Min, Max: c.HeadDimMult.Max},
		FFDim:        search.IntRange{Min: c.FFDim.Min, Max: c.FFDim.Max},
		Layers:       search.IntRange{Min: c.Layers.Min, Max: c.Layers.Max},
		Dropout:      search.FloatRange{Min: c.Dropout.Min, Max: c.Dropout.Max},
		LearningRate: search.LogRange{Min: c.LearningRate.Min, Max: c.LearningRate.Max},
	}
}

// search tunes the architecture on the training windows only. The last ValidationRatio of
// them, in time order, is held out and scored by MAPE in price units after every epoch.
func (r *Runner) search(ctx context.Context, f Factory, train *window.Dataset, st *scaler.State, raw *feature.Table, logger *zap.Logger) (*search.Study, search.Trial, error) {
	sc := r.cfg.Search
	fit, val, err := train.Tail(sc.ValidationRatio)
	if err != nil {
		return nil, search.Trial{}, err
	}

	opts := []search.Option{
		search.WithPruner(search.MedianPruner{StartupTrials: sc.StartupTrials, WarmupSteps: sc.WarmupSteps}),
		search.WithLogger(logger),
	}
	if r.trials != nil {
		opts = append(opts, search.WithObserver(r.trials))
	}
	h, err := search.NewHarness(SpaceOf(sc.Space),
		search.Config{Trials: sc.Trials, Parallelism: sc.Parallelism, Seed: r.cfg.Training.Seed}, opts...)
	if err != nil {
		return nil, search.Trial{}, err
	}

	objective := func(ctx context.Context, trial *search.Handle) (float64, error) {
		comp, err := f.Build(ArchitectureOf(trial.Params), trial.Params.LearningRate, int64(trial.Number)+1)
		if err != nil {
			return math.NaN(), err
		}
		last := math.NaN()
		hook := func(epoch int, _ learning.EpochStats) error {
			preds, err := predict(comp.Model, val, st, raw)
			if err != nil {
				return err
			}
			actual := make([]float64, len(preds))
			predicted := make([]float64, len(preds))
			for i, p := range preds {
				actual[i], predicted[i] = p.Actual, p.Predicted
			}
			if last, err = evaluate.MAPE(actual, predicted); err != nil {
				return err
			}
			return trial.Report(epoch, last)
		}
		trainer := learning.NewTrainer(comp.Model, comp.Objective, comp.Optimizer,
			learning.Config{Epochs: sc.EpochBudget, LogEvery: sc.EpochBudget},
			learning.WithLogger(logger.With(zap.Int("trial", trial.Number))),
			learning.WithEpochHook(hook),
			learning.WithRecorder(r.recorder))
		it, closeIt := r.trainIterator(fit, r.cfg.Training.Seed+int64(trial.Number))
		defer closeIt()
		if _, err := trainer.Fit(ctx, it, nil); err != nil {
			return last, err
		}
		return last, nil
	}

	study, err := h.Run(ctx, objective)
	if err != nil {
		return study, search.Trial{}, err
	}
	best, err := study.Best()
	return study, best, err
}
