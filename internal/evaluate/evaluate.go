// Package evaluate computes point-forecast accuracy metrics over held-out predictions.
package evaluate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/your-org/bar-forecast/internal/indicator"
)

// ErrNoPredictions is returned when there is nothing to evaluate.
var ErrNoPredictions = errors.New("no predictions")

// Hurst lags used for the residual diagnostic.
const (
	hurstMinLag = 2
	hurstMaxLag = 20
)

// Prediction is one forecast aligned to the timestamp of its target bar.
type Prediction struct {
	Time      time.Time `json:"time"`
	Actual    float64   `json:"actual"`
	Predicted float64   `json:"predicted"`
	Residual  float64   `json:"residual"`
}

// NewPrediction fills Residual as actual − predicted.
func NewPrediction(ts time.Time, actual, predicted float64) Prediction {
	return Prediction{Time: ts, Actual: actual, Predicted: predicted, Residual: actual - predicted}
}

// Report holds the accuracy metrics for one prediction set.
type Report struct {
	Count int     `json:"count"`
	MSE   float64 `json:"mse"`
	RMSE  float64 `json:"rmse"`
	MAE   float64 `json:"mae"`
	// MAPE is in percent. Targets equal to zero are skipped.
	MAPE float64 `json:"mape"`
	R2   float64 `json:"r2"`
	// DirectionalAccuracy is the share of steps whose predicted move from the previous
	// actual has the same sign as the realized move. NaN with fewer than two points.
	DirectionalAccuracy float64 `json:"directional_accuracy"`
	// ResidualHurst is NaN when there are too few residuals.
	ResidualHurst      float64 `json:"residual_hurst"`
	RealizedVolatility float64 `json:"realized_volatility"`
}

// Evaluate computes a Report. Predictions must be finite.
func Evaluate(preds []Prediction) (Report, error) {
	n := len(preds)
	if n == 0 {
		return Report{}, ErrNoPredictions
	}
	actual := make([]float64, n)
	predicted := make([]float64, n)
	resid := make([]float64, n)
	for i, p := range preds {
		if math.IsNaN(p.Predicted) || math.IsInf(p.Predicted, 0) || math.IsNaN(p.Actual) || math.IsInf(p.Actual, 0) {
			return Report{}, fmt.Errorf("evaluate: prediction %d is not finite", i)
		}
		actual[i], predicted[i] = p.Actual, p.Predicted
		resid[i] = p.Actual - p.Predicted
	}

	r := Report{Count: n}
	var absSum, pctSum float64
	pctN := 0
	for i, e := range resid {
		absSum += math.Abs(e)
		if actual[i] != 0 {
			pctSum += math.Abs(e / actual[i])
			pctN++
		}
	}
	r.MSE = floats.Dot(resid, resid) / float64(n)
	r.RMSE = math.Sqrt(r.MSE)
	r.MAE = absSum / float64(n)
	r.MAPE = math.NaN()
	if pctN > 0 {
		r.MAPE = 100 * pctSum / float64(pctN)
	}
	r.R2 = rSquared(actual, predicted)
	r.DirectionalAccuracy = directional(actual, predicted)

	r.ResidualHurst = math.NaN()
	if h, err := indicator.CalculateHurstExponent(resid, hurstMinLag, hurstMaxLag); err == nil {
		r.ResidualHurst = h
	}
	r.RealizedVolatility = indicator.CalculateRealizedVolatility(actual)
	return r, nil
}

// MAPE returns the mean absolute percentage error in percent, skipping zero targets.
func MAPE(actual, predicted []float64) (float64, error) {
	if len(actual) != len(predicted) || len(actual) == 0 {
		return 0, fmt.Errorf("evaluate: mape over %d actuals and %d predictions", len(actual), len(predicted))
	}
	var sum float64
	n := 0
	for i, a := range actual {
		if a == 0 {
			continue
		}
		sum += math.Abs((a - predicted[i]) / a)
		n++
	}
	if n == 0 {
		return math.NaN(), nil
	}
	return 100 * sum / float64(n), nil
}

// rSquared is 1 − SSres/SStot; a constant actual series gives NaN.
func rSquared(actual, predicted []float64) float64 {
	mean := stat.Mean(actual, nil)
	var ssTot, ssRes float64
	for i, a := range actual {
		d := a - mean
		ssTot += d * d
		e := a - predicted[i]
		ssRes += e * e
	}
	if ssTot == 0 {
		return math.NaN()
	}
	return 1 - ssRes/ssTot
}

func directional(actual, predicted []float64) float64 {
	if len(actual) < 2 {
		return math.NaN()
	}
	hits := 0
	for i := 1; i < len(actual); i++ {
		realized := actual[i] - actual[i-1]
		forecast := predicted[i] - actual[i-1]
		if sign(realized) == sign(forecast) {
			hits++
		}
	}
	return float64(hits) / float64(len(actual)-1)
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
