package forecast

import (
	"fmt"

	"github.com/your-org/bar-forecast/internal/config"
	"github.com/your-org/bar-forecast/internal/learning"
	"github.com/your-org/bar-forecast/internal/loss"
	"github.com/your-org/bar-forecast/internal/model"
	"github.com/your-org/bar-forecast/internal/search"
)

// Architecture is the part of a model configuration that search may vary.
type Architecture struct {
	DModel  int
	Heads   int
	FFDim   int
	Layers  int
	Dropout float64
}

// ArchitectureOf extracts the architecture of a sampled trial.
func ArchitectureOf(p search.Params) Architecture {
	return Architecture{DModel: p.DModel, Heads: p.Heads, FFDim: p.FFDim, Layers: p.Layers, Dropout: p.Dropout}
}

// Components is everything one training run owns. Nothing in it is shared between runs.
type Components struct {
	Model     *model.Transformer
	Optimizer *learning.Adam
	Objective learning.Objective
}

// Factory is the single construction path for model, optimizer and loss. Both the final
// training run and every search trial go through Build.
type Factory struct {
	InputDim  int
	SeqLen    int
	Seed      int64
	Precision model.Precision
	Training  config.TrainingConfig
	Loss      config.LossConfig
}

// NewFactory derives a Factory from the loaded configuration.
func NewFactory(cfg *config.Config, inputDim int) Factory {
	prec := model.Full
	if cfg.Training.MixedPrecision.Bool() {
		prec = model.Mixed
	}
	return Factory{
		InputDim:  inputDim,
		SeqLen:    cfg.Window.Length,
		Seed:      cfg.Training.Seed,
		Precision: prec,
		Training:  cfg.Training,
		Loss:      cfg.Loss,
	}
}

// Build creates fresh components. seedOffset separates the initial weights of search trials.
func (f Factory) Build(arch Architecture, learningRate float64, seedOffset int64) (*Components, error) {
	m, err := model.New(model.Config{
		InputDim:  f.InputDim,
		SeqLen:    f.SeqLen,
		DModel:    arch.DModel,
		Heads:     arch.Heads,
		FFDim:     arch.FFDim,
		Layers:    arch.Layers,
		Dropout:   arch.Dropout,
		Seed:      f.Seed + seedOffset,
		Precision: f.Precision,
	})
	if err != nil {
		return nil, err
	}
	if !(learningRate > 0) {
		return nil, fmt.Errorf("%w: learning rate %v", model.ErrInvalidConfig, learningRate)
	}
	opt := learning.NewAdam(learningRate)
	opt.WeightDecay = f.Training.WeightDecay
	opt.ClipNorm = f.Training.ClipNorm
	return &Components{
		Model:     m,
		Optimizer: opt,
		Objective: loss.NewComposite(f.Loss.Alpha, f.Loss.Beta, f.Loss.Gamma, f.Loss.Delta),
	}, nil
}
