package dbwriter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/search"
)

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Close()
}

var predictionColumns = []string{"time", "run_id", "symbol", "actual", "predicted", "residual"}

var trialColumns = []string{
	"trial_id", "run_id", "symbol", "number", "state", "value", "params", "intermediate", "error", "duration_ms",
}

type predictionRow struct {
	runID  uuid.UUID
	symbol string
	p      evaluate.Prediction
}

// TimescaleWriter はTimescaleDBへの書き込みを担当します。
// 予測値はバッファに溜め、BatchSize件ごとにCOPYで書き込みます。
type TimescaleWriter struct {
	pool      Pool
	logger    *zap.Logger
	batchSize int

	bufferMutex      sync.Mutex
	predictionBuffer []predictionRow
}

// NewTimescaleWriter は新しいTimescaleWriterインスタンスを作成します。
// このコンストラクタは、外部から提供されたDB接続プールを使用します。
func NewTimescaleWriter(pool Pool, batchSize int, logger *zap.Logger) (*TimescaleWriter, error) {
	if pool == nil {
		return nil, errors.New("dbwriter: nil pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		logger.Warn("BatchSize is zero or negative, defaulting to 100.", zap.Int("originalValue", batchSize))
		batchSize = 100
	}
	return &TimescaleWriter{
		pool:             pool,
		logger:           logger,
		batchSize:        batchSize,
		predictionBuffer: make([]predictionRow, 0, batchSize),
	}, nil
}

// SaveArtifacts は学習済みモデルのblobを保存します。同じrun_idとsymbolは上書きします。
func (w *TimescaleWriter) SaveArtifacts(ctx context.Context, a Artifact) error {
	const query = `INSERT INTO model_artifacts (run_id, symbol, model_version, model_config, scaler, params, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (run_id, symbol) DO UPDATE
	          SET model_version = EXCLUDED.model_version, model_config = EXCLUDED.model_config,
	              scaler = EXCLUDED.scaler, params = EXCLUDED.params, created_at = EXCLUDED.created_at`
	_, err := w.pool.Exec(ctx, query,
		a.RunID.String(), a.Symbol, a.ModelVersion, string(a.ModelConfig), a.Scaler, a.Params, a.CreatedAt)
	if err != nil {
		w.logger.Error("Failed to insert model artifact", zap.Error(err), zap.String("symbol", a.Symbol))
		return fmt.Errorf("failed to insert model artifact: %w", err)
	}
	w.logger.Debug("Saved model artifact", zap.String("symbol", a.Symbol), zap.String("model_version", a.ModelVersion))
	return nil
}

// SaveTrials は探索の全トライアルをCOPYで書き込みます。
func (w *TimescaleWriter) SaveTrials(ctx context.Context, runID uuid.UUID, symbol string, trials []search.Trial) error {
	if len(trials) == 0 {
		return nil
	}
	rows := make([][]interface{}, 0, len(trials))
	for _, t := range trials {
		r, err := toTrialRow(t)
		if err != nil {
			return fmt.Errorf("encode trial %d: %w", t.Number, err)
		}
		rows = append(rows, []interface{}{
			r.id.String(), runID.String(), symbol, r.number, r.state, r.value,
			string(r.params), string(r.intermediate), r.err, r.durationMS,
		})
	}
	if _, err := w.pool.CopyFrom(ctx, pgx.Identifier{"search_trials"}, trialColumns, pgx.CopyFromRows(rows)); err != nil {
		w.logger.Error("Failed to batch insert trials", zap.Error(err), zap.String("symbol", symbol))
		return fmt.Errorf("failed to insert trials: %w", err)
	}
	return nil
}

// SaveEvaluation は評価結果を1行保存します。
func (w *TimescaleWriter) SaveEvaluation(ctx context.Context, e Evaluation) error {
	query := `INSERT INTO evaluations (` + strings.Join(evaluationColumns, ", ") + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	if _, err := w.pool.Exec(ctx, query, evaluationArgs(e)...); err != nil {
		w.logger.Error("Failed to insert evaluation", zap.Error(err), zap.String("symbol", e.Symbol))
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return nil
}

// SavePredictions は予測値をバッファに追加し、BatchSizeに達したらフラッシュします。
func (w *TimescaleWriter) SavePredictions(ctx context.Context, runID uuid.UUID, symbol string, preds []evaluate.Prediction) error {
	w.bufferMutex.Lock()
	defer w.bufferMutex.Unlock()
	for _, p := range preds {
		w.predictionBuffer = append(w.predictionBuffer, predictionRow{runID: runID, symbol: symbol, p: p})
		if len(w.predictionBuffer) >= w.batchSize {
			if err := w.flushLocked(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *TimescaleWriter) flushLocked(ctx context.Context) error {
	if len(w.predictionBuffer) == 0 {
		return nil
	}
	w.logger.Debug("Flushing predictions", zap.Int("count", len(w.predictionBuffer)))
	_, err := w.pool.CopyFrom(ctx, pgx.Identifier{"predictions"}, predictionColumns,
		pgx.CopyFromRows(toPredictionInterfaces(w.predictionBuffer)))
	w.predictionBuffer = w.predictionBuffer[:0]
	if err != nil {
		w.logger.Error("Failed to batch insert predictions", zap.Error(err))
		return fmt.Errorf("failed to insert predictions: %w", err)
	}
	return nil
}

// Close はバッファをフラッシュしてからデータベース接続プールをクローズします。
func (w *TimescaleWriter) Close() {
	w.logger.Info("Closing TimescaleDB writer...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w.bufferMutex.Lock()
	if err := w.flushLocked(ctx); err != nil {
		w.logger.Error("Final flush failed", zap.Error(err))
	}
	w.bufferMutex.Unlock()

	w.pool.Close()
	w.logger.Info("TimescaleDB connection pool closed")
}

func toPredictionInterfaces(buf []predictionRow) [][]interface{} {
	rows := make([][]interface{}, len(buf))
	for i, r := range buf {
		rows[i] = []interface{}{r.p.Time, r.runID.String(), r.symbol, r.p.Actual, r.p.Predicted, r.p.Residual}
	}
	return rows
}
