//go:build sqltest
// +build sqltest

package schema

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLatestEvaluationsView は TEST_DATABASE_URL のTimescaleDBに対して、
// トランザクション内でスキーマを適用しビューを検証します（最後にロールバック）。
func TestLatestEvaluationsView(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "failed to connect to database")
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	applyAllSchemas(t, tx, findProjectRoot(t))
	insertTestData(t, tx)

	rows, err := tx.Query(ctx, "SELECT symbol, status, mse FROM v_latest_evaluations ORDER BY symbol")
	require.NoError(t, err, "failed to query view")
	defer rows.Close()

	type resultRow struct {
		Symbol string
		Status string
		MSE    *float64
	}
	var results []resultRow
	for rows.Next() {
		var r resultRow
		require.NoError(t, rows.Scan(&r.Symbol, &r.Status, &r.MSE))
		results = append(results, r)
	}
	require.NoError(t, rows.Err())

	require.Len(t, results, 2, "one row per symbol")
	assert.Equal(t, "AAPL", results[0].Symbol)
	assert.Equal(t, "succeeded", results[0].Status)
	require.NotNil(t, results[0].MSE)
	assert.InDelta(t, 0.4, *results[0].MSE, 1e-9)
	assert.Equal(t, "MSFT", results[1].Symbol)
	assert.Equal(t, "skipped", results[1].Status)
	assert.Nil(t, results[1].MSE)
}

func applyAllSchemas(t *testing.T, tx pgx.Tx, root string) {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(root, "db", "schema", "*.up.sql"))
	require.NoError(t, err)
	sort.Strings(files)
	for _, file := range files {
		schema, err := os.ReadFile(file)
		require.NoError(t, err)
		_, err = tx.Exec(context.Background(), string(schema))
		require.NoError(t, err, "failed to apply schema %s", file)
		t.Logf("Applied schema: %s", file)
	}
}

func insertTestData(t *testing.T, tx pgx.Tx) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	data := []struct {
		Symbol string
		Time   time.Time
		Status string
		MSE    *float64
	}{
		{"AAPL", now.Add(-2 * time.Hour), "failed", nil},
		{"AAPL", now, "succeeded", ptr(0.4)},
		{"MSFT", now.Add(-time.Hour), "skipped", nil},
	}
	for _, d := range data {
		_, err := tx.Exec(ctx,
			"INSERT INTO evaluations (run_id, symbol, time, status, count, mse) VALUES ($1, $2, $3, $4, 0, $5)",
			uuid.New(), d.Symbol, d.Time, d.Status, d.MSE)
		require.NoError(t, err, "failed to insert evaluation")
	}
}

func ptr(v float64) *float64 { return &v }
