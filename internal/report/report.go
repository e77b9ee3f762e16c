// Package report renders forecast outcomes as console tables.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/your-org/bar-forecast/internal/forecast"
	"github.com/your-org/bar-forecast/internal/search"
)

// ErrNoRows is returned when there is nothing to report.
var ErrNoRows = errors.New("no evaluations to report")

// Row は1シンボルの最新評価です。
type Row struct {
	Symbol      string    `json:"symbol"`
	RunID       uuid.UUID `json:"run_id"`
	Time        time.Time `json:"time"`
	Status      string    `json:"status"`
	MSE         float64   `json:"mse"`
	MAPE        float64   `json:"mape"`
	BaselineMSE float64   `json:"baseline_mse"`
	SkillScore  float64   `json:"skill_score"`
	Reason      string    `json:"reason,omitempty"`
}

// Summary はバッチ全体の集計です。
type Summary struct {
	Succeeded int
	Skipped   int
	Failed    int
	// MeanSkill is the mean skill score over succeeded symbols with a finite score.
	MeanSkill float64
	// BeatBaseline counts succeeded symbols with a positive skill score.
	BeatBaseline int
}

// Querier is the subset of *pgxpool.Pool the service needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Service reads stored evaluations.
type Service struct {
	db Querier
}

// NewService creates a new report service.
func NewService(db Querier) *Service {
	return &Service{db: db}
}

// FetchLatest reads the latest evaluation of every symbol from v_latest_evaluations.
func (s *Service) FetchLatest(ctx context.Context) ([]Row, error) {
	query := `
        SELECT symbol, run_id, time, status, mse, mape, baseline_mse, skill_score
        FROM v_latest_evaluations
        ORDER BY symbol;
    `
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest evaluations: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r                         Row
			mse, mape, baseMSE, skill *float64
		)
		if err := rows.Scan(&r.Symbol, &r.RunID, &r.Time, &r.Status, &mse, &mape, &baseMSE, &skill); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation row: %w", err)
		}
		r.MSE, r.MAPE, r.BaselineMSE, r.SkillScore = orNaN(mse), orNaN(mape), orNaN(baseMSE), orNaN(skill)
		out = append(out, r)
	}
	return out, rows.Err()
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// FromResults converts in-process run results into report rows, keeping their order.
func FromResults(results []forecast.Result) []Row {
	out := make([]Row, 0, len(results))
	for _, res := range results {
		r := Row{
			Symbol:      res.Symbol,
			RunID:       res.RunID,
			Time:        res.Started.Add(res.Duration),
			Status:      res.Status.String(),
			MSE:         math.NaN(),
			MAPE:        math.NaN(),
			BaselineMSE: math.NaN(),
			SkillScore:  math.NaN(),
			Reason:      res.Reason,
		}
		if res.Status == forecast.Succeeded {
			r.MSE, r.MAPE = res.Report.MSE, res.Report.MAPE
			r.BaselineMSE, r.SkillScore = res.Baseline.MSE, res.SkillScore
		}
		out = append(out, r)
	}
	return out
}

// Summarize counts outcomes and averages the skill score.
func Summarize(rows []Row) Summary {
	var s Summary
	var skillSum float64
	skillN := 0
	for _, r := range rows {
		switch r.Status {
		case forecast.Succeeded.String():
			s.Succeeded++
			if finite(r.SkillScore) {
				skillSum += r.SkillScore
				skillN++
				if r.SkillScore > 0 {
					s.BeatBaseline++
				}
			}
		case forecast.Skipped.String():
			s.Skipped++
		default:
			s.Failed++
		}
	}
	s.MeanSkill = math.NaN()
	if skillN > 0 {
		s.MeanSkill = skillSum / float64(skillN)
	}
	return s
}

// Render writes one line per symbol followed by the batch summary.
func Render(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		return ErrNoRows
	}
	table := tablewriter.NewWriter(w)
	table.Header("Symbol", "Status", "MSE", "MAPE %", "Baseline MSE", "Skill", "Reason")
	for _, r := range rows {
		if err := table.Append(
			r.Symbol,
			r.Status,
			format(r.MSE, 6),
			format(r.MAPE, 4),
			format(r.BaselineMSE, 6),
			format(r.SkillScore, 4),
			r.Reason,
		); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	s := Summarize(rows)
	_, err := fmt.Fprintf(w, "  succeeded: %d  skipped: %d  failed: %d  beat baseline: %d  mean skill: %s\n",
		s.Succeeded, s.Skipped, s.Failed, s.BeatBaseline, format(s.MeanSkill, 4))
	return err
}

// RenderTrials writes the search history of one symbol in trial order.
func RenderTrials(w io.Writer, trials []search.Trial) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "State", "MAPE %", "d_model", "Heads", "FF", "Layers", "Dropout", "LR", "Steps")
	for _, t := range trials {
		if err := table.Append(
			fmt.Sprintf("%d", t.Number),
			t.State.String(),
			format(t.Value, 4),
			fmt.Sprintf("%d", t.Params.DModel),
			fmt.Sprintf("%d", t.Params.Heads),
			fmt.Sprintf("%d", t.Params.FFDim),
			fmt.Sprintf("%d", t.Params.Layers),
			format(t.Params.Dropout, 3),
			fmt.Sprintf("%.2e", t.Params.LearningRate),
			fmt.Sprintf("%d", len(t.Intermediate)),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

// format rounds for display. Non-finite values print as "-".
func format(v float64, places int32) string {
	if !finite(v) {
		return "-"
	}
	return decimal.NewFromFloat(v).Round(places).String()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
