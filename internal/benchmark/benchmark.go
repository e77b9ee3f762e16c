// Package benchmark provides naive forecasts the model has to beat.
package benchmark

import (
	"fmt"
	"math"

	"github.com/your-org/bar-forecast/internal/evaluate"
	"github.com/your-org/bar-forecast/internal/feature"
)

// Persistence は直前の終値を次の終値の予測とするナイーブ予測です。
// tは正規化前のテーブル、targetIndicesはモデルの評価対象と同じ行番号です。
func Persistence(t *feature.Table, targetIndices []int) ([]evaluate.Prediction, error) {
	out := make([]evaluate.Prediction, 0, len(targetIndices))
	for _, idx := range targetIndices {
		if idx < 1 || idx >= t.Len() {
			return nil, fmt.Errorf("benchmark: target row %d outside [1, %d)", idx, t.Len())
		}
		row := t.Rows[idx]
		out = append(out, evaluate.NewPrediction(row.Time, row.Get(feature.Close), t.Rows[idx-1].Get(feature.Close)))
	}
	return out, nil
}

// Drift は直前の変化量がそのまま続くと仮定した予測です。
func Drift(t *feature.Table, targetIndices []int) ([]evaluate.Prediction, error) {
	out := make([]evaluate.Prediction, 0, len(targetIndices))
	for _, idx := range targetIndices {
		if idx < 2 || idx >= t.Len() {
			return nil, fmt.Errorf("benchmark: target row %d outside [2, %d)", idx, t.Len())
		}
		prev := t.Rows[idx-1].Get(feature.Close)
		prev2 := t.Rows[idx-2].Get(feature.Close)
		out = append(out, evaluate.NewPrediction(t.Rows[idx].Time, t.Rows[idx].Get(feature.Close), 2*prev-prev2))
	}
	return out, nil
}

// Comparison summarizes a model against a baseline on the same targets.
type Comparison struct {
	Model    evaluate.Report `json:"model"`
	Baseline evaluate.Report `json:"baseline"`
	// SkillScore is 1 − MSE(model)/MSE(baseline). Positive means the model wins.
	SkillScore float64 `json:"skill_score"`
}

// Compare builds a Comparison. A zero-error baseline gives a NaN skill score.
func Compare(model, baseline evaluate.Report) Comparison {
	skill := math.NaN()
	if baseline.MSE > 0 {
		skill = 1 - model.MSE/baseline.MSE
	}
	return Comparison{Model: model, Baseline: baseline, SkillScore: skill}
}
