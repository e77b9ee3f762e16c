package model

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const lnEps = 1e-5

// round32 rounds every element to float32 precision in place.
func round32(m *mat.Dense) {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := 0; j < c; j++ {
			row[j] = float64(float32(row[j]))
		}
	}
}

// addRow adds the 1×n row vector b to every row of m.
func addRow(m, b *mat.Dense) {
	r, _ := m.Dims()
	bias := b.RawRowView(0)
	for i := 0; i < r; i++ {
		floats.Add(m.RawRowView(i), bias)
	}
}

// accumColSum adds the column sums of m to the 1×n row vector dst.
func accumColSum(dst, m *mat.Dense) {
	r, _ := m.Dims()
	acc := dst.RawRowView(0)
	for i := 0; i < r; i++ {
		floats.Add(acc, m.RawRowView(i))
	}
}

// accumMul adds aᵀ·b to dst.
func accumMul(dst *mat.Dense, a, b mat.Matrix) {
	var tmp mat.Dense
	tmp.Mul(a.T(), b)
	dst.Add(dst, &tmp)
}

func matmul(a, b mat.Matrix, p Precision) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	if p == Mixed {
		round32(&out)
	}
	return &out
}

// linear computes x·w + b.
func linear(x, w, b *mat.Dense, p Precision) *mat.Dense {
	out := matmul(x, w, p)
	addRow(out, b)
	return out
}

// linearBackward accumulates dw and db for y = x·w + b and returns dx.
func linearBackward(x, w, dy, dw, db *mat.Dense) *mat.Dense {
	accumMul(dw, x, dy)
	accumColSum(db, dy)
	var dx mat.Dense
	dx.Mul(dy, w.T())
	return &dx
}

type lnCache struct {
	xhat *mat.Dense
	rstd []float64
}

// layerNorm normalizes each row of x and applies the 1×n gain g and shift b.
func layerNorm(x, g, b *mat.Dense) (*mat.Dense, lnCache) {
	r, c := x.Dims()
	xhat := mat.NewDense(r, c, nil)
	out := mat.NewDense(r, c, nil)
	rstd := make([]float64, r)
	gain, shift := g.RawRowView(0), b.RawRowView(0)
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		mean := floats.Sum(row) / float64(c)
		var v float64
		for _, e := range row {
			v += (e - mean) * (e - mean)
		}
		rstd[i] = 1 / math.Sqrt(v/float64(c)+lnEps)
		xh, o := xhat.RawRowView(i), out.RawRowView(i)
		for j, e := range row {
			xh[j] = (e - mean) * rstd[i]
			o[j] = gain[j]*xh[j] + shift[j]
		}
	}
	return out, lnCache{xhat: xhat, rstd: rstd}
}

// layerNormBackward accumulates dg and db and returns dx.
func layerNormBackward(dy *mat.Dense, cache lnCache, g, dg, db *mat.Dense) *mat.Dense {
	r, c := dy.Dims()
	dx := mat.NewDense(r, c, nil)
	gain := g.RawRowView(0)
	dgain, dshift := dg.RawRowView(0), db.RawRowView(0)
	dxhat := make([]float64, c)
	n := float64(c)
	for i := 0; i < r; i++ {
		dyr, xh := dy.RawRowView(i), cache.xhat.RawRowView(i)
		var sum, dot float64
		for j := 0; j < c; j++ {
			dgain[j] += dyr[j] * xh[j]
			dshift[j] += dyr[j]
			dxhat[j] = dyr[j] * gain[j]
			sum += dxhat[j]
			dot += dxhat[j] * xh[j]
		}
		out := dx.RawRowView(i)
		for j := 0; j < c; j++ {
			out[j] = cache.rstd[i] / n * (n*dxhat[j] - sum - xh[j]*dot)
		}
	}
	return dx
}

// causalSoftmax turns scores into row-wise probabilities over columns j <= i, in place.
func causalSoftmax(s *mat.Dense) {
	r, c := s.Dims()
	for i := 0; i < r; i++ {
		row := s.RawRowView(i)
		limit := i + 1
		if limit > c {
			limit = c
		}
		maxv := floats.Max(row[:limit])
		var sum float64
		for j := 0; j < limit; j++ {
			row[j] = math.Exp(row[j] - maxv)
			sum += row[j]
		}
		for j := 0; j < limit; j++ {
			row[j] /= sum
		}
		for j := limit; j < c; j++ {
			row[j] = 0
		}
	}
}

// softmaxBackward maps dP to dS given probabilities P: dS = P ⊙ (dP - rowsum(dP ⊙ P)).
func softmaxBackward(p, dp *mat.Dense) *mat.Dense {
	r, c := p.Dims()
	ds := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		pr, dpr, out := p.RawRowView(i), dp.RawRowView(i), ds.RawRowView(i)
		dot := floats.Dot(pr, dpr)
		for j := 0; j < c; j++ {
			out[j] = pr[j] * (dpr[j] - dot)
		}
	}
	return ds
}

// dropoutMask returns an inverted-dropout mask of zeros and 1/(1-p), or nil when p == 0.
func dropoutMask(r, c int, p float64, rng *rand.Rand) *mat.Dense {
	if p <= 0 {
		return nil
	}
	keep := 1 / (1 - p)
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j := range row {
			if rng.Float64() >= p {
				row[j] = keep
			}
		}
	}
	return m
}

func applyMask(m, mask *mat.Dense) {
	if mask != nil {
		m.MulElem(m, mask)
	}
}

func relu(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, x)
	return out
}

func reluBackward(pre, dy *mat.Dense) *mat.Dense {
	r, c := dy.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		if pre.At(i, j) > 0 {
			return v
		}
		return 0
	}, dy)
	return out
}
