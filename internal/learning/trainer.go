package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// ErrNumericInstability is returned when an input, target, prediction, loss or gradient
// is not finite. The run stops before the optimizer step.
var ErrNumericInstability = errors.New("numeric instability")

// Stateは学習ループの状態です。
type State int

const (
	StateInit State = iota
	StateTrainEpoch
	StateValidateEpoch
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateTrainEpoch:
		return "train"
	case StateValidateEpoch:
		return "validate"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the loop settings.
type Config struct {
	Epochs   int
	LogEvery int
}

// EpochStatsは1エポックの集計値です。
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	ValLoss   float64 // NaN when no validation iterator is given
	Batches   int
	GradNorm  float64 // mean pre-clip norm
	Duration  time.Duration
}

// Historyはエポックごとの統計です。
type History struct {
	Epochs []EpochStats
}

// Final returns the last completed epoch.
func (h History) Final() (EpochStats, bool) {
	if len(h.Epochs) == 0 {
		return EpochStats{}, false
	}
	return h.Epochs[len(h.Epochs)-1], true
}

// EpochHookは各エポックの検証後に呼ばれます。エラーを返すと学習を終了し、
// そのエラーをそのまま呼び出し元へ返します（枝刈りなど）。
type EpochHook func(epoch int, stats EpochStats) error

// Trainerはモデル・損失・オプティマイザを束ねた学習ループです。
type Trainer struct {
	model     Model
	objective Objective
	opt       *Adam
	cfg       Config
	logger    *zap.Logger
	hook      EpochHook
	recorder  Recorder
	state     State
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithEpochHook sets the hook run after every epoch.
func WithEpochHook(h EpochHook) Option {
	return func(t *Trainer) { t.hook = h }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(t *Trainer) {
		if r != nil {
			t.recorder = r
		}
	}
}

// NewTrainerは新しいTrainerを生成します。
func NewTrainer(model Model, objective Objective, opt *Adam, cfg Config, opts ...Option) *Trainer {
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 1
	}
	t := &Trainer{
		model:     model,
		objective: objective,
		opt:       opt,
		cfg:       cfg,
		logger:    zap.NewNop(),
		recorder:  nopRecorder{},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// State returns the current loop state.
func (t *Trainer) State() State {
	return t.state
}

// Fitは Init → {TrainEpoch → ValidateEpoch} × Epochs → Done を実行します。
// valがnilの場合は検証を省略します。早期終了は行いません。
func (t *Trainer) Fit(ctx context.Context, train, val BatchIterator) (History, error) {
	var hist History
	t.state = StateInit
	t.logger.Debug("training started",
		zap.String("model_version", t.model.Version()),
		zap.Int("epochs", t.cfg.Epochs))

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		start := time.Now()

		t.state = StateTrainEpoch
		trainLoss, batches, gradNorm, err := t.TrainEpoch(ctx, epoch, train)
		if err != nil {
			return hist, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		valLoss := math.NaN()
		if val != nil {
			t.state = StateValidateEpoch
			valLoss, err = t.ValidateEpoch(ctx, epoch, val)
			if err != nil {
				return hist, fmt.Errorf("epoch %d: %w", epoch, err)
			}
		}

		stats := EpochStats{
			Epoch:     epoch,
			TrainLoss: trainLoss,
			ValLoss:   valLoss,
			Batches:   batches,
			GradNorm:  gradNorm,
			Duration:  time.Since(start),
		}
		hist.Epochs = append(hist.Epochs, stats)
		t.recorder.ObserveEpoch(stats)

		if epoch%t.cfg.LogEvery == 0 || epoch == t.cfg.Epochs {
			t.logger.Info("epoch complete",
				zap.Int("epoch", epoch),
				zap.Float64("train_loss", trainLoss),
				zap.Float64("val_loss", valLoss),
				zap.Float64("grad_norm", gradNorm),
				zap.Duration("duration", stats.Duration))
		}

		if t.hook != nil {
			if err := t.hook(epoch, stats); err != nil {
				t.state = StateDone
				return hist, err
			}
		}
	}
	t.state = StateDone
	return hist, nil
}

// TrainEpochは1エポック分、バッチごとに1回パラメータを更新します。
// 戻り値はバッチ平均の損失、バッチ数、平均勾配ノルムです。
func (t *Trainer) TrainEpoch(ctx context.Context, epoch int, it BatchIterator) (float64, int, float64, error) {
	it.Reset(epoch)
	var total, normSum float64
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, n, 0, err
		}
		b, ok := it.Next()
		if !ok {
			break
		}
		loss, norm, err := t.step(b)
		if err != nil {
			return 0, n, 0, fmt.Errorf("batch %d: %w", n, err)
		}
		t.recorder.ObserveBatch(loss)
		total += loss
		normSum += norm
		n++
	}
	if n == 0 {
		return 0, 0, 0, errors.New("training iterator produced no batches")
	}
	return total / float64(n), n, normSum / float64(n), nil
}

func (t *Trainer) step(b Batch) (float64, float64, error) {
	if err := checkBatch(b); err != nil {
		return 0, 0, err
	}
	t.model.ZeroGrad()

	preds := make([]float64, b.Len())
	backs := make([]func(float64), b.Len())
	for i, x := range b.Inputs {
		y, back, err := t.model.Forward(x, true)
		if err != nil {
			return 0, 0, err
		}
		if !finite(y) {
			return 0, 0, fmt.Errorf("%w: prediction %v", ErrNumericInstability, y)
		}
		preds[i], backs[i] = y, back
	}

	loss, grad, err := t.objective.Evaluate(preds, b.Targets)
	if err != nil {
		return 0, 0, err
	}
	if !finite(loss) {
		return 0, 0, fmt.Errorf("%w: loss %v", ErrNumericInstability, loss)
	}
	for i, g := range grad {
		if !finite(g) {
			return 0, 0, fmt.Errorf("%w: loss gradient %v", ErrNumericInstability, g)
		}
		backs[i](g)
	}

	norm, err := t.opt.Step(t.model.Params(), t.model.Grads())
	if err != nil {
		return 0, 0, err
	}
	return loss, norm, nil
}

// ValidateEpochはdropoutと更新を無効にして、検証バッチの平均損失を返します。
func (t *Trainer) ValidateEpoch(ctx context.Context, epoch int, it BatchIterator) (float64, error) {
	it.Reset(epoch)
	var total float64
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		b, ok := it.Next()
		if !ok {
			break
		}
		preds, err := Predict(t.model, b)
		if err != nil {
			return 0, fmt.Errorf("validation batch %d: %w", n, err)
		}
		loss, _, err := t.objective.Evaluate(preds, b.Targets)
		if err != nil {
			return 0, err
		}
		if !finite(loss) {
			return 0, fmt.Errorf("validation batch %d: %w: loss %v", n, ErrNumericInstability, loss)
		}
		total += loss
		n++
	}
	if n == 0 {
		return math.NaN(), nil
	}
	return total / float64(n), nil
}

// Predictは推論モードでバッチを予測し、非有限値を検出します。
func Predict(m Model, b Batch) ([]float64, error) {
	if err := checkBatch(b); err != nil {
		return nil, err
	}
	preds := make([]float64, b.Len())
	for i, x := range b.Inputs {
		y, _, err := m.Forward(x, false)
		if err != nil {
			return nil, err
		}
		if !finite(y) {
			return nil, fmt.Errorf("%w: prediction %v", ErrNumericInstability, y)
		}
		preds[i] = y
	}
	return preds, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func checkBatch(b Batch) error {
	if len(b.Inputs) != len(b.Targets) {
		return fmt.Errorf("batch has %d inputs and %d targets", len(b.Inputs), len(b.Targets))
	}
	for i, x := range b.Inputs {
		if !finite(b.Targets[i]) {
			return fmt.Errorf("%w: target %d is %v", ErrNumericInstability, i, b.Targets[i])
		}
		for _, row := range x {
			for _, v := range row {
				if !finite(v) {
					return fmt.Errorf("%w: input %d holds %v", ErrNumericInstability, i, v)
				}
			}
		}
	}
	return nil
}
