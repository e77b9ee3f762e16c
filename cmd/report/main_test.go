package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/your-org/bar-forecast/internal/report"
)

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchLatest(ctx context.Context) ([]report.Row, error) {
	args := m.Called(ctx)
	rows, _ := args.Get(0).([]report.Row)
	return rows, args.Error(1)
}

func TestPrintLatest(t *testing.T) {
	t.Run("最新評価を表示", func(t *testing.T) {
		f := new(mockFetcher)
		f.On("FetchLatest", mock.Anything).Return([]report.Row{
			{Symbol: "AAPL", RunID: uuid.New(), Time: time.Now(), Status: "succeeded", MSE: 0.04, MAPE: 0.1, BaselineMSE: 0.05, SkillScore: 0.2},
		}, nil)

		var buf bytes.Buffer
		assert.NoError(t, printLatest(context.Background(), f, &buf))
		assert.Contains(t, buf.String(), "AAPL")
		assert.Contains(t, buf.String(), "succeeded: 1")
		f.AssertExpectations(t)
	})

	t.Run("評価が無い場合", func(t *testing.T) {
		f := new(mockFetcher)
		f.On("FetchLatest", mock.Anything).Return(nil, nil)
		err := printLatest(context.Background(), f, &bytes.Buffer{})
		assert.ErrorIs(t, err, report.ErrNoRows)
	})

	t.Run("DBエラー", func(t *testing.T) {
		boom := errors.New("connection refused")
		f := new(mockFetcher)
		f.On("FetchLatest", mock.Anything).Return(nil, boom)
		err := printLatest(context.Background(), f, &bytes.Buffer{})
		assert.ErrorIs(t, err, boom)
	})
}
