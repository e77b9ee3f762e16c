package datastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimescaleSource_FetchBars(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	src := NewTimescaleSource(mock)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	end := t0.Add(time.Hour)

	rows := pgxmock.NewRows([]string{"time", "open", "high", "low", "close", "volume"}).
		AddRow(t0, decimal.RequireFromString("100.25"), decimal.RequireFromString("101"), decimal.RequireFromString("99.5"), decimal.RequireFromString("100.75"), decimal.RequireFromString("1500")).
		AddRow(t0.Add(time.Minute), decimal.RequireFromString("100.75"), decimal.RequireFromString("101.5"), decimal.RequireFromString("100.5"), decimal.RequireFromString("101.25"), decimal.RequireFromString("900"))

	mock.ExpectQuery("SELECT time, open, high, low, close, volume FROM bars").
		WithArgs("AAPL", nil, end).
		WillReturnRows(rows)

	bars, err := src.FetchBars(ctx, "AAPL", time.Time{}, end)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 100.25, bars[0].Open)
	assert.Equal(t, 101.25, bars[1].Close)
	assert.Equal(t, 900.0, bars[1].Volume)
	assert.True(t, bars[1].Time.Equal(t0.Add(time.Minute)))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleSource_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery("FROM bars").WillReturnError(boom)

	_, err = NewTimescaleSource(mock).FetchBars(context.Background(), "AAPL", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimescaleSource_Symbols(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT DISTINCT symbol FROM bars").
		WillReturnRows(pgxmock.NewRows([]string{"symbol"}).AddRow("AAPL").AddRow("MSFT"))

	syms, err := NewTimescaleSource(mock).Symbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, syms)
	assert.NoError(t, mock.ExpectationsWereMet())
}
