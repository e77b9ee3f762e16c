package datastore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/your-org/bar-forecast/internal/feature"
)

// Querier is the subset of *pgxpool.Pool the repository needs. pgxmock satisfies it in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// TimescaleSource reads bars from the bars hypertable. Prices are NUMERIC and scanned
// through decimal.Decimal before conversion to float64.
type TimescaleSource struct {
	db Querier
}

// NewTimescaleSource creates a new TimescaleSource.
func NewTimescaleSource(db Querier) *TimescaleSource {
	return &TimescaleSource{db: db}
}

const fetchBarsQuery = `
        SELECT time, open, high, low, close, volume
        FROM bars
        WHERE symbol = $1
          AND ($2::timestamptz IS NULL OR time >= $2)
          AND ($3::timestamptz IS NULL OR time < $3)
        ORDER BY time ASC;
    `

// FetchBars implements BarSource.
func (s *TimescaleSource) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]feature.Bar, error) {
	rows, err := s.db.Query(ctx, fetchBarsQuery, symbol, nullTime(start), nullTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []feature.Bar
	for rows.Next() {
		var (
			ts                             time.Time
			open, high, low, close, volume decimal.Decimal
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar row: %w", err)
		}
		bars = append(bars, feature.Bar{
			Time:   ts,
			Open:   open.InexactFloat64(),
			High:   high.InexactFloat64(),
			Low:    low.InexactFloat64(),
			Close:  close.InexactFloat64(),
			Volume: volume.InexactFloat64(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bar rows: %w", err)
	}
	return bars, nil
}

// Symbols lists every symbol that has at least one bar.
func (s *TimescaleSource) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
