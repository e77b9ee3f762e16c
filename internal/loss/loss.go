// Package loss implements the composite distribution-aware training objective.
package loss

import (
	"errors"
	"fmt"
	"math"
)

// DefaultEps guards every moment denominator.
const DefaultEps = 1e-8

// ErrShapeMismatch is returned for empty batches or prediction/target length mismatch.
var ErrShapeMismatch = errors.New("loss: shape mismatch")

// Composite is α·MSE + β·|ΔVar| + γ·|ΔSkew| + δ·|ΔKurt| over population moments.
type Composite struct {
	Alpha float64
	Beta  float64
	Gamma float64
	Delta float64
	Eps   float64
}

// NewComposite returns a Composite with the given weights and the default epsilon.
func NewComposite(alpha, beta, gamma, delta float64) *Composite {
	return &Composite{Alpha: alpha, Beta: beta, Gamma: gamma, Delta: delta, Eps: DefaultEps}
}

// Default weights every term with 1.
func Default() *Composite {
	return NewComposite(1, 1, 1, 1)
}

// Stats holds the population moments of a batch.
type Stats struct {
	Mean     float64
	Variance float64
	Skew     float64
	Kurtosis float64 // excess

	m3, m4 float64
}

// Moments computes population variance, skewness m3/(m2+eps)^1.5 and excess
// kurtosis m4/(m2+eps)^2 - 3.
func Moments(x []float64, eps float64) Stats {
	n := float64(len(x))
	if n == 0 {
		return Stats{}
	}
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= n
	var m2, m3, m4 float64
	for _, v := range x {
		d := v - mean
		d2 := d * d
		m2 += d2
		m3 += d2 * d
		m4 += d2 * d2
	}
	m2, m3, m4 = m2/n, m3/n, m4/n
	return Stats{
		Mean:     mean,
		Variance: m2,
		Skew:     m3 / math.Pow(m2+eps, 1.5),
		Kurtosis: m4/math.Pow(m2+eps, 2) - 3,
		m3:       m3,
		m4:       m4,
	}
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// Evaluate returns the loss and its gradient with respect to every prediction.
func (c *Composite) Evaluate(pred, target []float64) (float64, []float64, error) {
	if len(pred) == 0 || len(pred) != len(target) {
		return 0, nil, fmt.Errorf("%w: %d predictions, %d targets", ErrShapeMismatch, len(pred), len(target))
	}
	eps := c.Eps
	n := float64(len(pred))

	var mse float64
	for i := range pred {
		d := pred[i] - target[i]
		mse += d * d
	}
	mse /= n

	ps, ts := Moments(pred, eps), Moments(target, eps)
	dVar := ps.Variance - ts.Variance
	dSkew := ps.Skew - ts.Skew
	dKurt := ps.Kurtosis - ts.Kurtosis
	value := c.Alpha*mse + c.Beta*math.Abs(dVar) + c.Gamma*math.Abs(dSkew) + c.Delta*math.Abs(dKurt)

	denom := ps.Variance + eps
	inv15 := math.Pow(denom, -1.5)
	inv25 := math.Pow(denom, -2.5)
	inv2 := math.Pow(denom, -2)
	inv3 := math.Pow(denom, -3)
	sv, ss, sk := sign(dVar), sign(dSkew), sign(dKurt)

	grad := make([]float64, len(pred))
	for i, p := range pred {
		d := p - ps.Mean
		dm2 := 2 * d / n
		dm3 := 3 / n * (d*d - ps.Variance)
		dm4 := 4 / n * (d*d*d - ps.m3)
		dSkewDp := dm3*inv15 - 1.5*ps.m3*inv25*dm2
		dKurtDp := dm4*inv2 - 2*ps.m4*inv3*dm2

		grad[i] = c.Alpha*2*(p-target[i])/n +
			c.Beta*sv*dm2 +
			c.Gamma*ss*dSkewDp +
			c.Delta*sk*dKurtDp
	}
	return value, grad, nil
}

// MSE is the plain mean squared error objective.
type MSE struct{}

// Evaluate returns the mean squared error and its gradient.
func (MSE) Evaluate(pred, target []float64) (float64, []float64, error) {
	if len(pred) == 0 || len(pred) != len(target) {
		return 0, nil, fmt.Errorf("%w: %d predictions, %d targets", ErrShapeMismatch, len(pred), len(target))
	}
	n := float64(len(pred))
	var v float64
	grad := make([]float64, len(pred))
	for i := range pred {
		d := pred[i] - target[i]
		v += d * d
		grad[i] = 2 * d / n
	}
	return v / n, grad, nil
}
