package dbwriter

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/search"
)

// Artifact はシンボルごとの学習済みモデルとスケーラーの保存単位です。
// ScalerとParamsは中身を解釈しない不透明なblobとして扱います。
type Artifact struct {
	RunID        uuid.UUID `db:"run_id"`
	Symbol       string    `db:"symbol"`
	ModelVersion string    `db:"model_version"`
	ModelConfig  []byte    `db:"model_config"`
	Scaler       []byte    `db:"scaler"`
	Params       []byte    `db:"params"`
	CreatedAt    time.Time `db:"created_at"`
}

// Evaluation はデータベースに保存する評価結果の構造体です。
type Evaluation struct {
	RunID      uuid.UUID       `db:"run_id"`
	Symbol     string          `db:"symbol"`
	Time       time.Time       `db:"time"`
	Status     string          `db:"status"`
	Report     evaluate.Report `db:"-"`
	Baseline   evaluate.Report `db:"-"`
	SkillScore float64         `db:"skill_score"`
}

// Repository defines the persistence collaborator of a forecast run.
// This allows for mocking in tests and abstracting the writer implementation.
type Repository interface {
	// SaveArtifacts stores the scaler and parameter blobs of a trained model.
	SaveArtifacts(ctx context.Context, a Artifact) error
	// SaveTrials stores the full search history of a run.
	SaveTrials(ctx context.Context, runID uuid.UUID, symbol string, trials []search.Trial) error
	// SaveEvaluation stores the metrics of a run.
	SaveEvaluation(ctx context.Context, e Evaluation) error
	// SavePredictions buffers aligned predictions. Close flushes the buffer.
	SavePredictions(ctx context.Context, runID uuid.UUID, symbol string, preds []evaluate.Prediction) error
	// Close flushes any buffered data and closes the database connection.
	Close()
}

// nullable maps non-finite values to SQL NULL.
func nullable(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

type trialRow struct {
	id           uuid.UUID
	number       int
	state        string
	value        interface{}
	params       []byte
	intermediate []byte
	err          string
	durationMS   int64
}

func toTrialRow(t search.Trial) (trialRow, error) {
	params, err := json.Marshal(t.Params)
	if err != nil {
		return trialRow{}, err
	}
	inter := make(map[int]interface{}, len(t.Intermediate))
	for k, v := range t.Intermediate {
		inter[k] = nullable(v)
	}
	intermediate, err := json.Marshal(inter)
	if err != nil {
		return trialRow{}, err
	}
	return trialRow{
		id:           t.ID,
		number:       t.Number,
		state:        t.State.String(),
		value:        nullable(t.Value),
		params:       params,
		intermediate: intermediate,
		err:          t.Err,
		durationMS:   t.Duration.Milliseconds(),
	}, nil
}

var evaluationColumns = []string{
	"run_id", "symbol", "time", "status", "count", "mse", "rmse", "mae", "mape", "r2",
	"directional_accuracy", "residual_hurst", "realized_volatility",
	"baseline_mse", "baseline_mape", "skill_score",
}

func evaluationArgs(e Evaluation) []interface{} {
	r := e.Report
	return []interface{}{
		e.RunID.String(), e.Symbol, e.Time, e.Status, r.Count,
		nullable(r.MSE), nullable(r.RMSE), nullable(r.MAE), nullable(r.MAPE), nullable(r.R2),
		nullable(r.DirectionalAccuracy), nullable(r.ResidualHurst), nullable(r.RealizedVolatility),
		nullable(e.Baseline.MSE), nullable(e.Baseline.MAPE), nullable(e.SkillScore),
	}
}
