package dbwriter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure Go driver registered as "sqlite"

	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/search"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS model_artifacts (
    run_id        TEXT     NOT NULL,
    symbol        TEXT     NOT NULL,
    model_version TEXT     NOT NULL,
    model_config  TEXT,
    scaler        BLOB     NOT NULL,
    params        BLOB     NOT NULL,
    created_at    DATETIME NOT NULL,
    PRIMARY KEY (run_id, symbol)
);

CREATE TABLE IF NOT EXISTS search_trials (
    trial_id     TEXT PRIMARY KEY,
    run_id       TEXT    NOT NULL,
    symbol       TEXT    NOT NULL,
    number       INTEGER NOT NULL,
    state        TEXT    NOT NULL,
    value        REAL,
    params       TEXT    NOT NULL,
    intermediate TEXT    NOT NULL,
    error        TEXT,
    duration_ms  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS evaluations (
    run_id               TEXT     NOT NULL,
    symbol               TEXT     NOT NULL,
    time                 DATETIME NOT NULL,
    status               TEXT     NOT NULL,
    count                INTEGER  NOT NULL,
    mse                  REAL,
    rmse                 REAL,
    mae                  REAL,
    mape                 REAL,
    r2                   REAL,
    directional_accuracy REAL,
    residual_hurst       REAL,
    realized_volatility  REAL,
    baseline_mse         REAL,
    baseline_mape        REAL,
    skill_score          REAL
);

CREATE TABLE IF NOT EXISTS predictions (
    time      DATETIME NOT NULL,
    run_id    TEXT     NOT NULL,
    symbol    TEXT     NOT NULL,
    actual    REAL     NOT NULL,
    predicted REAL     NOT NULL,
    residual  REAL     NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trials_run ON search_trials(run_id, symbol, number);
CREATE INDEX IF NOT EXISTS idx_eval_symbol ON evaluations(symbol, time DESC);
CREATE INDEX IF NOT EXISTS idx_pred_run ON predictions(run_id, symbol, time);
`

// SQLiteWriter stores run results in a local SQLite file (pure Go, no cgo).
type SQLiteWriter struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteWriter opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteWriter(path string, logger *zap.Logger) (*SQLiteWriter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dbwriter: open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbwriter: apply sqlite schema: %w", err)
	}
	logger.Info("SQLite writer ready", zap.String("path", path))
	return &SQLiteWriter{db: db, logger: logger}, nil
}

// DB exposes the handle for read-side queries.
func (w *SQLiteWriter) DB() *sql.DB {
	return w.db
}

// SaveArtifacts upserts the blobs for (run, symbol).
func (w *SQLiteWriter) SaveArtifacts(ctx context.Context, a Artifact) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO model_artifacts (run_id, symbol, model_version, model_config, scaler, params, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, symbol) DO UPDATE SET
			model_version = excluded.model_version, model_config = excluded.model_config,
			scaler = excluded.scaler, params = excluded.params, created_at = excluded.created_at`,
		a.RunID.String(), a.Symbol, a.ModelVersion, string(a.ModelConfig), a.Scaler, a.Params, a.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("dbwriter: save artifacts: %w", err)
	}
	return nil
}

// SaveTrials inserts every trial in one transaction.
func (w *SQLiteWriter) SaveTrials(ctx context.Context, runID uuid.UUID, symbol string, trials []search.Trial) error {
	return w.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO search_trials (`+strings.Join(trialColumns, ", ")+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range trials {
			r, err := toTrialRow(t)
			if err != nil {
				return fmt.Errorf("encode trial %d: %w", t.Number, err)
			}
			if _, err := stmt.ExecContext(ctx, r.id.String(), runID.String(), symbol, r.number, r.state, r.value,
				string(r.params), string(r.intermediate), r.err, r.durationMS); err != nil {
				return fmt.Errorf("insert trial %d: %w", t.Number, err)
			}
		}
		return nil
	})
}

// SaveEvaluation inserts one evaluation row.
func (w *SQLiteWriter) SaveEvaluation(ctx context.Context, e Evaluation) error {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(evaluationColumns)), ", ")
	args := evaluationArgs(e)
	args[2] = e.Time.UTC()
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO evaluations (`+strings.Join(evaluationColumns, ", ")+`) VALUES (`+marks+`)`, args...)
	if err != nil {
		return fmt.Errorf("dbwriter: save evaluation: %w", err)
	}
	return nil
}

// SavePredictions inserts predictions in one transaction.
func (w *SQLiteWriter) SavePredictions(ctx context.Context, runID uuid.UUID, symbol string, preds []evaluate.Prediction) error {
	return w.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO predictions (`+strings.Join(predictionColumns, ", ")+`) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range preds {
			if _, err := stmt.ExecContext(ctx, p.Time.UTC(), runID.String(), symbol, p.Actual, p.Predicted, p.Residual); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the database.
func (w *SQLiteWriter) Close() {
	if err := w.db.Close(); err != nil {
		w.logger.Error("Failed to close sqlite", zap.Error(err))
	}
}

func (w *SQLiteWriter) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbwriter: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("dbwriter: %w", err)
	}
	return tx.Commit()
}
