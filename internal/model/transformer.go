package model

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Transformer is a pre-norm causal encoder stack with a linear head on the last time step.
// A Transformer is not safe for concurrent training; Predict may run concurrently with
// other Predict calls.
type Transformer struct {
	cfg     Config
	params  *Params
	grads   *Params
	rng     *rand.Rand
	version string
}

// New builds a Transformer with freshly initialized parameters.
func New(cfg Config) (*Transformer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	p := newParams(cfg)
	p.initialize(rng)
	return &Transformer{
		cfg:     cfg,
		params:  p,
		grads:   newParams(cfg),
		rng:     rng,
		version: newVersion(),
	}, nil
}

func newVersion() string {
	return fmt.Sprintf("model-%s", uuid.New().String())
}

// Config returns the architecture.
func (m *Transformer) Config() Config { return m.cfg }

// Version identifies this parameter set.
func (m *Transformer) Version() string { return m.version }

// Params returns the learned matrices in a fixed order. The optimizer mutates them in place.
func (m *Transformer) Params() []*mat.Dense { return m.params.List() }

// Grads returns the gradient accumulators aligned with Params.
func (m *Transformer) Grads() []*mat.Dense { return m.grads.List() }

// ParamNames labels Params.
func (m *Transformer) ParamNames() []string { return m.params.Names() }

// NumParams returns the scalar parameter count.
func (m *Transformer) NumParams() int { return m.params.Count() }

// ZeroGrad resets the gradient accumulators.
func (m *Transformer) ZeroGrad() {
	for _, g := range m.grads.List() {
		g.Zero()
	}
}

// MarshalBinary encodes the configuration and parameters as an opaque blob.
func (m *Transformer) MarshalBinary() ([]byte, error) {
	return m.params.encode(m.cfg)
}

// Load rebuilds a Transformer from a blob produced by MarshalBinary.
func Load(data []byte) (*Transformer, error) {
	cfg, p, err := decodeParams(data)
	if err != nil {
		return nil, err
	}
	return &Transformer{
		cfg:     cfg,
		params:  p,
		grads:   newParams(cfg),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		version: newVersion(),
	}, nil
}

type blockCache struct {
	in       *mat.Dense
	ln1      lnCache
	a        *mat.Dense
	q, k, v  *mat.Dense
	probs    []*mat.Dense
	o        *mat.Dense
	attnMask *mat.Dense
	h1       *mat.Dense
	ln2      lnCache
	b        *mat.Dense
	f1, r    *mat.Dense
	ffMask   *mat.Dense
}

type cache struct {
	x      *mat.Dense
	blocks []blockCache
	out    *mat.Dense
}

func (m *Transformer) input(x [][]float64) (*mat.Dense, error) {
	if len(x) != m.cfg.SeqLen {
		return nil, fmt.Errorf("%w: window has %d rows, want %d", ErrInvalidConfig, len(x), m.cfg.SeqLen)
	}
	d := mat.NewDense(m.cfg.SeqLen, m.cfg.InputDim, nil)
	for i, row := range x {
		if len(row) != m.cfg.InputDim {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrInvalidConfig, i, len(row), m.cfg.InputDim)
		}
		d.SetRow(i, row)
	}
	return d, nil
}

// encode runs the encoder stack and returns the final hidden states (L×D).
func (m *Transformer) encode(x *mat.Dense, train bool, c *cache) *mat.Dense {
	prec := m.cfg.Precision
	p := m.params
	h := linear(x, p.win, p.bin, prec)
	h.Add(h, p.pos)

	dropout := 0.0
	if train {
		dropout = m.cfg.Dropout
	}
	L, D := m.cfg.SeqLen, m.cfg.DModel
	dh := m.cfg.HeadDim()
	scale := 1 / math.Sqrt(float64(dh))

	for li := range p.blocks {
		bp := &p.blocks[li]
		bc := blockCache{in: h}

		bc.a, bc.ln1 = layerNorm(h, bp.ln1g, bp.ln1b)
		bc.q = linear(bc.a, bp.wq, bp.bq, prec)
		bc.k = linear(bc.a, bp.wk, bp.bk, prec)
		bc.v = linear(bc.a, bp.wv, bp.bv, prec)

		bc.o = mat.NewDense(L, D, nil)
		bc.probs = make([]*mat.Dense, m.cfg.Heads)
		for hd := 0; hd < m.cfg.Heads; hd++ {
			lo, hi := hd*dh, (hd+1)*dh
			qh := bc.q.Slice(0, L, lo, hi)
			kh := bc.k.Slice(0, L, lo, hi)
			vh := bc.v.Slice(0, L, lo, hi)

			s := matmul(qh, kh.T(), prec)
			s.Scale(scale, s)
			causalSoftmax(s)
			bc.probs[hd] = s

			oh := matmul(s, vh, prec)
			bc.o.Slice(0, L, lo, hi).(*mat.Dense).Copy(oh)
		}

		z := linear(bc.o, bp.wo, bp.bo, prec)
		bc.attnMask = dropoutMask(L, D, dropout, m.rng)
		applyMask(z, bc.attnMask)
		h1 := mat.NewDense(L, D, nil)
		h1.Add(h, z)
		bc.h1 = h1

		bc.b, bc.ln2 = layerNorm(h1, bp.ln2g, bp.ln2b)
		bc.f1 = linear(bc.b, bp.w1, bp.b1, prec)
		bc.r = relu(bc.f1)
		f2 := linear(bc.r, bp.w2, bp.b2, prec)
		bc.ffMask = dropoutMask(L, D, dropout, m.rng)
		applyMask(f2, bc.ffMask)

		next := mat.NewDense(L, D, nil)
		next.Add(h1, f2)
		h = next

		if c != nil {
			c.blocks = append(c.blocks, bc)
		}
	}
	return h
}

// Forward runs one window and returns the prediction with a closure that accumulates
// the parameter gradients for a given upstream gradient dOut. With train set, dropout
// is active.
func (m *Transformer) Forward(x [][]float64, train bool) (float64, func(dOut float64), error) {
	in, err := m.input(x)
	if err != nil {
		return 0, nil, err
	}
	c := &cache{x: in, blocks: make([]blockCache, 0, m.cfg.Layers)}
	h := m.encode(in, train, c)
	c.out = h
	return m.head(h), func(dOut float64) { m.backward(c, dOut) }, nil
}

// head maps the last time step to the scalar output.
func (m *Transformer) head(h *mat.Dense) float64 {
	last := h.RawRowView(m.cfg.SeqLen - 1)
	return floats.Dot(last, m.params.wout.RawMatrix().Data) + m.params.bout.At(0, 0)
}

func (m *Transformer) backward(c *cache, dOut float64) {
	p, g := m.params, m.grads
	L, D := m.cfg.SeqLen, m.cfg.DModel
	dh := m.cfg.HeadDim()
	scale := 1 / math.Sqrt(float64(dh))

	// head
	lastRow := c.out.RawRowView(L - 1)
	for j := 0; j < D; j++ {
		g.wout.Set(j, 0, g.wout.At(j, 0)+lastRow[j]*dOut)
	}
	g.bout.Set(0, 0, g.bout.At(0, 0)+dOut)
	dH := mat.NewDense(L, D, nil)
	for j := 0; j < D; j++ {
		dH.Set(L-1, j, p.wout.At(j, 0)*dOut)
	}

	for li := len(p.blocks) - 1; li >= 0; li-- {
		bp, bg, bc := &p.blocks[li], &g.blocks[li], &c.blocks[li]

		// h = h1 + dropout(ff(ln2(h1)))
		dF2 := mat.DenseCopyOf(dH)
		applyMask(dF2, bc.ffMask)
		dR := linearBackward(bc.r, bp.w2, dF2, bg.w2, bg.b2)
		dF1 := reluBackward(bc.f1, dR)
		dB := linearBackward(bc.b, bp.w1, dF1, bg.w1, bg.b1)
		dH1 := mat.DenseCopyOf(dH)
		dH1.Add(dH1, layerNormBackward(dB, bc.ln2, bp.ln2g, bg.ln2g, bg.ln2b))

		// h1 = in + dropout(attn(ln1(in)))
		dZ := mat.DenseCopyOf(dH1)
		applyMask(dZ, bc.attnMask)
		dO := linearBackward(bc.o, bp.wo, dZ, bg.wo, bg.bo)

		dQ := mat.NewDense(L, D, nil)
		dK := mat.NewDense(L, D, nil)
		dV := mat.NewDense(L, D, nil)
		for hd := 0; hd < m.cfg.Heads; hd++ {
			lo, hi := hd*dh, (hd+1)*dh
			qh := bc.q.Slice(0, L, lo, hi)
			kh := bc.k.Slice(0, L, lo, hi)
			vh := bc.v.Slice(0, L, lo, hi)
			dOh := dO.Slice(0, L, lo, hi)
			probs := bc.probs[hd]

			var dP mat.Dense
			dP.Mul(dOh, vh.T())
			dV.Slice(0, L, lo, hi).(*mat.Dense).Mul(probs.T(), dOh)

			dS := softmaxBackward(probs, &dP)
			dS.Scale(scale, dS)
			dQ.Slice(0, L, lo, hi).(*mat.Dense).Mul(dS, kh)
			dK.Slice(0, L, lo, hi).(*mat.Dense).Mul(dS.T(), qh)
		}

		dA := linearBackward(bc.a, bp.wq, dQ, bg.wq, bg.bq)
		dA.Add(dA, linearBackward(bc.a, bp.wk, dK, bg.wk, bg.bk))
		dA.Add(dA, linearBackward(bc.a, bp.wv, dV, bg.wv, bg.bv))

		dIn := dH1
		dIn.Add(dIn, layerNormBackward(dA, bc.ln1, bp.ln1g, bg.ln1g, bg.ln1b))
		dH = dIn
	}

	// h0 = x·win + bin + pos
	g.pos.Add(g.pos, dH)
	linearBackward(c.x, p.win, dH, g.win, g.bin)
}

// Predict runs every window with dropout disabled. It does not touch gradients or the RNG.
func (m *Transformer) Predict(batch [][][]float64) ([]float64, error) {
	out := make([]float64, len(batch))
	for i, x := range batch {
		in, err := m.input(x)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		out[i] = m.head(m.encode(in, false, nil))
	}
	return out, nil
}

// PredictFunc exposes Predict as a plain callable for explainability collaborators.
func (m *Transformer) PredictFunc() func([][][]float64) ([]float64, error) {
	return m.Predict
}
