package learning

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adamは減衰分離型weight decayとグローバルノルムclippingを持つAdamオプティマイザです。
// モーメントはfloat64で保持します。
type Adam struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64
	ClipNorm    float64 // 0 disables clipping

	step int
	m, v []*mat.Dense
}

// NewAdamは標準的なハイパーパラメータでAdamを生成します。
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int {
	return a.step
}

// GlobalNorm returns the L2 norm over every gradient matrix.
func GlobalNorm(grads []*mat.Dense) float64 {
	var sum float64
	for _, g := range grads {
		n := mat.Norm(g, 2)
		sum += n * n
	}
	return math.Sqrt(sum)
}

// Stepは1回パラメータを更新し、clipping前の勾配ノルムを返します。
// 勾配が有限でない場合はパラメータに触れずにErrNumericInstabilityを返します。
func (a *Adam) Step(params, grads []*mat.Dense) (float64, error) {
	if len(params) != len(grads) {
		return 0, fmt.Errorf("adam: %d params, %d grads", len(params), len(grads))
	}
	norm := GlobalNorm(grads)
	if math.IsNaN(norm) || math.IsInf(norm, 0) {
		return norm, fmt.Errorf("%w: gradient norm %v", ErrNumericInstability, norm)
	}
	if a.m == nil {
		a.m = make([]*mat.Dense, len(params))
		a.v = make([]*mat.Dense, len(params))
		for i, p := range params {
			r, c := p.Dims()
			a.m[i] = mat.NewDense(r, c, nil)
			a.v[i] = mat.NewDense(r, c, nil)
		}
	}

	clip := 1.0
	if a.ClipNorm > 0 && norm > a.ClipNorm {
		clip = a.ClipNorm / norm
	}
	a.step++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for i, p := range params {
		r, c := p.Dims()
		g, m, v := grads[i], a.m[i], a.v[i]
		for row := 0; row < r; row++ {
			pr, gr, mr, vr := p.RawRowView(row), g.RawRowView(row), m.RawRowView(row), v.RawRowView(row)
			for j := 0; j < c; j++ {
				gj := gr[j] * clip
				mr[j] = a.Beta1*mr[j] + (1-a.Beta1)*gj
				vr[j] = a.Beta2*vr[j] + (1-a.Beta2)*gj*gj
				mhat := mr[j] / bc1
				vhat := vr[j] / bc2
				pr[j] -= a.LR * (mhat/(math.Sqrt(vhat)+a.Eps) + a.WeightDecay*pr[j])
			}
		}
	}
	return norm, nil
}
