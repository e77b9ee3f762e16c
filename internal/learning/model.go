package learning

import (
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LinearModel は最終行の特徴量に対する線形回帰モデルです。
// Transformerの比較対象やループの検証に使います。
type LinearModel struct {
	version string
	weights *mat.Dense // 1 x features
	bias    *mat.Dense // 1 x 1
	gw, gb  *mat.Dense
}

// NewLinearModel は重みゼロのLinearModelを生成します。
func NewLinearModel(features int) *LinearModel {
	return &LinearModel{
		version: fmt.Sprintf("linear-%s", uuid.New().String()),
		weights: mat.NewDense(1, features, nil),
		bias:    mat.NewDense(1, 1, nil),
		gw:      mat.NewDense(1, features, nil),
		gb:      mat.NewDense(1, 1, nil),
	}
}

// Forward はウィンドウの最終行から予測値を返します。
func (m *LinearModel) Forward(x [][]float64, train bool) (float64, func(float64), error) {
	if len(x) == 0 {
		return 0, nil, fmt.Errorf("linear model: empty window")
	}
	last := x[len(x)-1]
	w := m.weights.RawRowView(0)
	if len(last) != len(w) {
		return 0, nil, fmt.Errorf("linear model: window has %d features, want %d", len(last), len(w))
	}
	y := floats.Dot(w, last) + m.bias.At(0, 0)
	back := func(dOut float64) {
		floats.AddScaled(m.gw.RawRowView(0), dOut, last)
		m.gb.Set(0, 0, m.gb.At(0, 0)+dOut)
	}
	return y, back, nil
}

// ZeroGrad は勾配をゼロに戻します。
func (m *LinearModel) ZeroGrad() {
	m.gw.Zero()
	m.gb.Zero()
}

// Params returns weights then bias.
func (m *LinearModel) Params() []*mat.Dense {
	return []*mat.Dense{m.weights, m.bias}
}

// Grads returns the gradients in Params order.
func (m *LinearModel) Grads() []*mat.Dense {
	return []*mat.Dense{m.gw, m.gb}
}

// Version はモデルのバージョンを返します。
func (m *LinearModel) Version() string {
	return m.version
}
