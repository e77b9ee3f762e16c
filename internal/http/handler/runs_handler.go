package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/your-org/bar-forecast/internal/forecast"
	"github.com/your-org/bar-forecast/internal/search"
)

// ResultProvider returns the latest result of every symbol.
type ResultProvider interface {
	Latest() []forecast.Result
}

// RunsHandler はフォーキャスト結果のHTTPリクエストを処理します。
type RunsHandler struct {
	runs ResultProvider
}

// NewRunsHandler は新しいRunsHandlerを作成します。
func NewRunsHandler(runs ResultProvider) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// RegisterRoutes はchiルーターに結果関連のルートを登録します。
func (h *RunsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/runs/latest", h.GetLatestRuns)
	r.Get("/runs/latest/{symbol}", h.GetLatestRun)
}

// RunView is the JSON shape of a Result. Non-finite metrics are null.
type RunView struct {
	Symbol       string         `json:"symbol"`
	RunID        uuid.UUID      `json:"run_id"`
	Status       string         `json:"status"`
	Reason       string         `json:"reason,omitempty"`
	TestWindows  int            `json:"test_windows"`
	MSE          *float64       `json:"mse"`
	RMSE         *float64       `json:"rmse"`
	MAE          *float64       `json:"mae"`
	MAPE         *float64       `json:"mape"`
	R2           *float64       `json:"r2"`
	Directional  *float64       `json:"directional_accuracy"`
	BaselineMSE  *float64       `json:"baseline_mse"`
	SkillScore   *float64       `json:"skill_score"`
	DriftMSE     *float64       `json:"drift_mse"`
	DriftSkill   *float64       `json:"drift_skill_score"`
	ModelVersion string         `json:"model_version,omitempty"`
	Params       search.Params  `json:"params"`
	Trials       map[string]int `json:"trials,omitempty"`
	Started      time.Time      `json:"started"`
	Seconds      float64        `json:"duration_seconds"`
}

// NewRunView converts a Result.
func NewRunView(res forecast.Result) RunView {
	v := RunView{
		Symbol:       res.Symbol,
		RunID:        res.RunID,
		Status:       res.Status.String(),
		Reason:       res.Reason,
		TestWindows:  res.Report.Count,
		ModelVersion: res.ModelVersion,
		Params:       res.Params,
		Started:      res.Started,
		Seconds:      res.Duration.Seconds(),
	}
	if res.Status == forecast.Succeeded {
		v.MSE, v.RMSE, v.MAE = num(res.Report.MSE), num(res.Report.RMSE), num(res.Report.MAE)
		v.MAPE, v.R2 = num(res.Report.MAPE), num(res.Report.R2)
		v.Directional = num(res.Report.DirectionalAccuracy)
		v.BaselineMSE, v.SkillScore = num(res.Baseline.MSE), num(res.SkillScore)
		v.DriftMSE, v.DriftSkill = num(res.Drift.MSE), num(res.DriftSkillScore)
	}
	if res.Study != nil {
		v.Trials = make(map[string]int)
		for state, n := range res.Study.Count() {
			v.Trials[state.String()] = n
		}
	}
	return v
}

func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// GetLatestRuns は全シンボルの最新結果を返します。
func (h *RunsHandler) GetLatestRuns(w http.ResponseWriter, r *http.Request) {
	results := h.runs.Latest()
	views := make([]RunView, 0, len(results))
	for _, res := range results {
		views = append(views, NewRunView(res))
	}
	writeJSON(w, views)
}

// GetLatestRun は1シンボルの最新結果を返します。
func (h *RunsHandler) GetLatestRun(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	for _, res := range h.runs.Latest() {
		if res.Symbol == symbol {
			writeJSON(w, NewRunView(res))
			return
		}
	}
	http.Error(w, "No run for symbol "+symbol, http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode results to JSON", http.StatusInternalServerError)
	}
}
