package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/bar-forecast/internal/benchmark"
	"github.com/your-org/bar-forecast/internal/config"
	"github.com/your-org/bar-forecast/internal/dbwriter"
	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/feature"
	"github.com/your-org/bar-forecast/internal/learning"
	"github.com/your-org/bar-forecast/internal/model"
	"github.com/your-org/bar-forecast/internal/scaler"
	"github.com/your-org/bar-forecast/internal/search"
	"github.com/your-org/bar-forecast/internal/window"
)

// Result is the typed outcome of one symbol run. Baseline is the persistence forecast
// and Drift the last-change-continues forecast, both scored on the test windows.
type Result struct {
	Symbol          string                `json:"symbol"`
	RunID           uuid.UUID             `json:"run_id"`
	Status          Status                `json:"status"`
	Reason          string                `json:"reason,omitempty"`
	Err             error                 `json:"-"`
	Report          evaluate.Report       `json:"report"`
	Baseline        evaluate.Report       `json:"baseline"`
	SkillScore      float64               `json:"skill_score"`
	Drift           evaluate.Report       `json:"drift"`
	DriftSkillScore float64               `json:"drift_skill_score"`
	Predictions     []evaluate.Prediction `json:"-"`
	Study           *search.Study         `json:"-"`
	Params          search.Params         `json:"params"`
	History         learning.History      `json:"-"`
	Scaler          *scaler.State         `json:"-"`
	ModelVersion    string                `json:"model_version,omitempty"`
	Started         time.Time             `json:"started"`
	Duration        time.Duration         `json:"duration"`
}

// RunObserver is notified when a symbol run ends.
type RunObserver interface {
	RunFinished(symbol, status string, d time.Duration)
}

// Runner executes the pipeline for one or many symbols. It keeps the latest Result per
// symbol for the HTTP surface.
type Runner struct {
	cfg         *config.Config
	features    feature.Options
	repo        dbwriter.Repository
	logger      *zap.Logger
	recorder    learning.Recorder
	trials      search.Observer
	runs        RunObserver
	concurrency int

	mu     sync.RWMutex
	latest map[string]Result
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRepository sets where artifacts, trials and evaluations are stored.
func WithRepository(repo dbwriter.Repository) Option {
	return func(r *Runner) { r.repo = repo }
}

// WithRecorder sets the training metrics sink.
func WithRecorder(rec learning.Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithTrialObserver sets the search trial observer.
func WithTrialObserver(o search.Observer) Option {
	return func(r *Runner) { r.trials = o }
}

// WithRunObserver sets the symbol run observer.
func WithRunObserver(o RunObserver) Option {
	return func(r *Runner) { r.runs = o }
}

// WithConcurrency bounds how many symbols RunAll processes at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithFeatureOptions overrides the indicator windows.
func WithFeatureOptions(o feature.Options) Option {
	return func(r *Runner) { r.features = o }
}

// NewRunner creates a Runner for a validated configuration.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:         cfg,
		features:    feature.DefaultOptions(),
		logger:      zap.NewNop(),
		concurrency: runtime.GOMAXPROCS(0),
		latest:      make(map[string]Result),
	}
	for _, o := range opts {
		o(r)
	}
	if r.repo == nil {
		r.repo = dbwriter.NewNopWriter(r.logger)
	}
	return r
}

// RunAll processes every symbol concurrently. One symbol's failure never affects another.
// Results are ordered by symbol.
func (r *Runner) RunAll(ctx context.Context, bars map[string][]feature.Bar) []Result {
	symbols := make([]string, 0, len(bars))
	for s := range bars {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	results := make([]Result, len(symbols))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, sym := range symbols {
		g.Go(func() error {
			results[i] = r.Run(ctx, sym, bars[sym])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Run executes the pipeline for one symbol and never returns an error: the outcome is
// carried by Result.Status.
func (r *Runner) Run(ctx context.Context, symbol string, bars []feature.Bar) (res Result) {
	res = Result{
		Symbol:          symbol,
		RunID:           uuid.New(),
		Started:         time.Now(),
		SkillScore:      math.NaN(),
		DriftSkillScore: math.NaN(),
	}
	logger := r.logger.With(zap.String("symbol", symbol), zap.String("run_id", res.RunID.String()))

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
		}
		res.Status = Classify(res.Err)
		if res.Err != nil {
			res.Reason = res.Err.Error()
		}
		res.Duration = time.Since(res.Started)
		r.finish(logger, res)
	}()

	res.Err = r.run(ctx, &res, bars, logger)
	return res
}

func (r *Runner) finish(logger *zap.Logger, res Result) {
	switch res.Status {
	case Succeeded:
		logger.Info("forecast run succeeded",
			zap.Int("test_windows", res.Report.Count),
			zap.Float64("mse", res.Report.MSE),
			zap.Float64("mape", res.Report.MAPE),
			zap.Float64("skill_score", res.SkillScore),
			zap.Float64("drift_skill_score", res.DriftSkillScore),
			zap.Duration("duration", res.Duration))
	case Skipped:
		logger.Warn("forecast run skipped", zap.String("reason", res.Reason))
	default:
		logger.Error("forecast run failed", zap.Error(res.Err))
	}

	r.mu.Lock()
	r.latest[res.Symbol] = res
	r.mu.Unlock()
	if r.runs != nil {
		r.runs.RunFinished(res.Symbol, res.Status.String(), res.Duration)
	}
}

// Latest returns the most recent Result of every symbol, ordered by symbol.
func (r *Runner) Latest() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Result, 0, len(r.latest))
	for _, res := range r.latest {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (r *Runner) run(ctx context.Context, res *Result, bars []feature.Bar, logger *zap.Logger) error {
	table, err := feature.Build(bars, r.features)
	if err != nil {
		return err
	}
	raw := table.Clone()

	length := r.cfg.Window.Length
	trainEnd, err := window.Boundary(table.Len(), length, r.cfg.Window.TrainRatio)
	if err != nil {
		return err
	}
	cols := feature.AllColumns()
	st, err := scaler.Fit(table.Slice(0, trainEnd+length), cols)
	if err != nil {
		return err
	}
	st.Apply(table)
	res.Scaler = st

	train, test, err := window.Split(table, trainEnd, length, feature.Close, cols)
	if err != nil {
		return err
	}
	logger.Debug("windows built",
		zap.Int("rows", table.Len()),
		zap.Int("train_end", trainEnd),
		zap.Int("train_windows", train.Len()),
		zap.Int("test_windows", test.Len()))

	factory := NewFactory(r.cfg, len(cols))
	res.Params = r.defaultParams()
	if r.cfg.Search.Enabled.Bool() {
		study, best, err := r.search(ctx, factory, train, st, raw, logger)
		res.Study = study
		if study != nil {
			if serr := r.repo.SaveTrials(ctx, res.RunID, res.Symbol, study.Trials()); serr != nil {
				logger.Error("failed to save trials", zap.Error(serr))
			}
		}
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		res.Params = best.Params
		logger.Info("search finished",
			zap.Int("best_trial", best.Number),
			zap.Float64("best_mape", best.Value),
			zap.Int("d_model", best.Params.DModel),
			zap.Int("heads", best.Params.Heads),
			zap.Float64("learning_rate", best.Params.LearningRate))
	}

	comp, err := factory.Build(ArchitectureOf(res.Params), res.Params.LearningRate, 0)
	if err != nil {
		return err
	}
	res.ModelVersion = comp.Model.Version()

	trainer := learning.NewTrainer(comp.Model, comp.Objective, comp.Optimizer,
		learning.Config{Epochs: r.cfg.Training.Epochs, LogEvery: r.cfg.Training.LogEvery},
		learning.WithLogger(logger),
		learning.WithRecorder(r.recorder))
	it, closeIt := r.trainIterator(train, r.cfg.Training.Seed)
	defer closeIt()
	val := learning.NewSliceIterator(test.Inputs(), test.Targets(), r.cfg.Training.BatchSize, false, 0)
	res.History, err = trainer.Fit(ctx, it, val)
	if err != nil {
		return err
	}

	preds, err := predict(comp.Model, test, st, raw)
	if err != nil {
		return err
	}
	res.Predictions = preds
	if res.Report, err = evaluate.Evaluate(preds); err != nil {
		return err
	}

	basePreds, err := benchmark.Persistence(raw, targetIndices(test))
	if err != nil {
		return err
	}
	if res.Baseline, err = evaluate.Evaluate(basePreds); err != nil {
		return err
	}
	res.SkillScore = benchmark.Compare(res.Report, res.Baseline).SkillScore

	driftPreds, err := benchmark.Drift(raw, targetIndices(test))
	if err != nil {
		return err
	}
	if res.Drift, err = evaluate.Evaluate(driftPreds); err != nil {
		return err
	}
	res.DriftSkillScore = benchmark.Compare(res.Report, res.Drift).SkillScore

	if err := r.persist(ctx, res, comp.Model); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

func (r *Runner) defaultParams() search.Params {
	m := r.cfg.Model
	return search.Params{
		Heads:        m.Heads,
		DModel:       m.DModel,
		FFDim:        m.FFDim,
		Layers:       m.Layers,
		Dropout:      m.Dropout,
		LearningRate: r.cfg.Training.LearningRate,
	}
}

func (r *Runner) trainIterator(ds *window.Dataset, seed int64) (learning.BatchIterator, func()) {
	it := learning.NewSliceIterator(ds.Inputs(), ds.Targets(), r.cfg.Training.BatchSize, r.cfg.Training.Shuffle.Bool(), seed)
	if w := r.cfg.Training.Workers; w > 0 {
		p := learning.NewPrefetchIterator(it, w)
		return p, p.Close
	}
	return it, func() {}
}

// predict runs the model over ds and maps outputs back to price units. Actuals come from
// the unscaled table.
func predict(m learning.Model, ds *window.Dataset, st *scaler.State, raw *feature.Table) ([]evaluate.Prediction, error) {
	ys, err := learning.Predict(m, learning.Batch{Inputs: ds.Inputs(), Targets: ds.Targets()})
	if err != nil {
		return nil, err
	}
	out := make([]evaluate.Prediction, 0, len(ys))
	for i, s := range ds.Samples {
		p, err := st.Inverse(feature.Close, ys[i])
		if err != nil {
			return nil, err
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: prediction %d is %v in price units", learning.ErrNumericInstability, i, p)
		}
		out = append(out, evaluate.NewPrediction(s.Time, raw.Rows[s.TargetIndex].Get(feature.Close), p))
	}
	return out, nil
}

func targetIndices(ds *window.Dataset) []int {
	out := make([]int, len(ds.Samples))
	for i, s := range ds.Samples {
		out[i] = s.TargetIndex
	}
	return out
}

func (r *Runner) persist(ctx context.Context, res *Result, m *model.Transformer) error {
	cfgBlob, err := json.Marshal(m.Config())
	if err != nil {
		return err
	}
	scalerBlob, err := res.Scaler.MarshalBinary()
	if err != nil {
		return err
	}
	paramBlob, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := r.repo.SaveArtifacts(ctx, dbwriter.Artifact{
		RunID:        res.RunID,
		Symbol:       res.Symbol,
		ModelVersion: res.ModelVersion,
		ModelConfig:  cfgBlob,
		Scaler:       scalerBlob,
		Params:       paramBlob,
		CreatedAt:    now,
	}); err != nil {
		return err
	}
	if err := r.repo.SaveEvaluation(ctx, dbwriter.Evaluation{
		RunID:      res.RunID,
		Symbol:     res.Symbol,
		Time:       now,
		Status:     Succeeded.String(),
		Report:     res.Report,
		Baseline:   res.Baseline,
		SkillScore: res.SkillScore,
	}); err != nil {
		return err
	}
	return r.repo.SavePredictions(ctx, res.RunID, res.Symbol, res.Predictions)
}
