package learning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func drain(it BatchIterator) []float64 {
	var out []float64
	for {
		b, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, b.Targets...)
	}
}

func seq(n int) ([][][]float64, []float64) {
	inputs := make([][][]float64, n)
	targets := make([]float64, n)
	for i := range targets {
		inputs[i] = [][]float64{{float64(i)}}
		targets[i] = float64(i)
	}
	return inputs, targets
}

func TestSliceIterator_Ordered(t *testing.T) {
	inputs, targets := seq(10)
	it := NewSliceIterator(inputs, targets, 4, false, 0)
	assert.Equal(t, 3, it.NumBatches())

	var sizes []int
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		sizes = append(sizes, b.Len())
		for i := range b.Targets {
			assert.Equal(t, b.Targets[i], b.Inputs[i][0][0], "input and target must stay paired")
		}
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)

	it.Reset(5)
	assert.Equal(t, targets, drain(it))
}

func TestSliceIterator_ShufflePerEpoch(t *testing.T) {
	inputs, targets := seq(20)
	it := NewSliceIterator(inputs, targets, 3, true, 42)

	it.Reset(1)
	e1 := drain(it)
	it.Reset(2)
	e2 := drain(it)
	it.Reset(1)
	e1again := drain(it)

	assert.ElementsMatch(t, targets, e1)
	assert.Equal(t, e1, e1again, "same seed and epoch give the same order")
	assert.NotEqual(t, e1, e2)
}

func TestPrefetchIterator_PreservesOrder(t *testing.T) {
	inputs, targets := seq(25)
	inner := NewSliceIterator(inputs, targets, 4, true, 3)
	p := NewPrefetchIterator(NewSliceIterator(inputs, targets, 4, true, 3), 2)
	defer p.Close()

	for epoch := 1; epoch <= 3; epoch++ {
		inner.Reset(epoch)
		p.Reset(epoch)
		assert.Equal(t, drain(inner), drain(p))
	}
}

func TestPrefetchIterator_ResetMidEpoch(t *testing.T) {
	inputs, targets := seq(50)
	p := NewPrefetchIterator(NewSliceIterator(inputs, targets, 1, false, 0), 1)
	p.Reset(0)
	_, ok := p.Next()
	require.True(t, ok)

	p.Reset(1)
	assert.Equal(t, targets, drain(p))
	p.Close()
	_, ok = p.Next()
	assert.False(t, ok)
}

func TestAdam_StepAndClip(t *testing.T) {
	p := []*mat.Dense{mat.NewDense(1, 2, []float64{1, -1})}
	g := []*mat.Dense{mat.NewDense(1, 2, []float64{3, 4})}

	opt := NewAdam(0.1)
	opt.ClipNorm = 1
	norm, err := opt.Step(p, g)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, norm, 1e-12)
	// first bias-corrected step moves every coordinate by ~lr against the gradient sign
	assert.InDelta(t, 0.9, p[0].At(0, 0), 1e-6)
	assert.InDelta(t, -1.1, p[0].At(0, 1), 1e-6)

	g[0].Set(0, 0, math.NaN())
	_, err = opt.Step(p, g)
	assert.ErrorIs(t, err, ErrNumericInstability)
	assert.Equal(t, 1, opt.Steps())
}

func TestAdam_WeightDecay(t *testing.T) {
	p := []*mat.Dense{mat.NewDense(1, 1, []float64{2})}
	g := []*mat.Dense{mat.NewDense(1, 1, nil)}
	opt := NewAdam(0.1)
	opt.WeightDecay = 0.5
	_, err := opt.Step(p, g)
	require.NoError(t, err)
	assert.InDelta(t, 2-0.1*0.5*2, p[0].At(0, 0), 1e-12)
}

func TestAdam_ShapeMismatch(t *testing.T) {
	_, err := NewAdam(0.1).Step([]*mat.Dense{mat.NewDense(1, 1, nil)}, nil)
	assert.Error(t, err)
}
