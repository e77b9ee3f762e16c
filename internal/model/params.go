package model

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

type blockParams struct {
	ln1g, ln1b     *mat.Dense
	wq, wk, wv, wo *mat.Dense
	bq, bk, bv, bo *mat.Dense
	ln2g, ln2b     *mat.Dense
	w1, b1, w2, b2 *mat.Dense
}

// Params holds every learned matrix of a Transformer. Biases and norm gains are 1×n rows.
type Params struct {
	win, bin   *mat.Dense
	pos        *mat.Dense
	blocks     []blockParams
	wout, bout *mat.Dense
}

func newParams(c Config) *Params {
	d, ff := c.DModel, c.FFDim
	p := &Params{
		win:  mat.NewDense(c.InputDim, d, nil),
		bin:  mat.NewDense(1, d, nil),
		pos:  mat.NewDense(c.SeqLen, d, nil),
		wout: mat.NewDense(d, 1, nil),
		bout: mat.NewDense(1, 1, nil),
	}
	p.blocks = make([]blockParams, c.Layers)
	for i := range p.blocks {
		p.blocks[i] = blockParams{
			ln1g: mat.NewDense(1, d, nil), ln1b: mat.NewDense(1, d, nil),
			wq: mat.NewDense(d, d, nil), wk: mat.NewDense(d, d, nil),
			wv: mat.NewDense(d, d, nil), wo: mat.NewDense(d, d, nil),
			bq: mat.NewDense(1, d, nil), bk: mat.NewDense(1, d, nil),
			bv: mat.NewDense(1, d, nil), bo: mat.NewDense(1, d, nil),
			ln2g: mat.NewDense(1, d, nil), ln2b: mat.NewDense(1, d, nil),
			w1: mat.NewDense(d, ff, nil), b1: mat.NewDense(1, ff, nil),
			w2: mat.NewDense(ff, d, nil), b2: mat.NewDense(1, d, nil),
		}
	}
	return p
}

// initialize fills weights with Xavier-uniform values, positions with N(0, 0.02²)
// and norm gains with ones. Biases stay zero.
func (p *Params) initialize(rng *rand.Rand) {
	xavier(p.win, rng)
	p.pos.Apply(func(_, _ int, _ float64) float64 { return 0.02 * rng.NormFloat64() }, p.pos)
	for i := range p.blocks {
		b := &p.blocks[i]
		fill(b.ln1g, 1)
		fill(b.ln2g, 1)
		for _, w := range []*mat.Dense{b.wq, b.wk, b.wv, b.wo, b.w1, b.w2} {
			xavier(w, rng)
		}
	}
	xavier(p.wout, rng)
}

func xavier(m *mat.Dense, rng *rand.Rand) {
	r, c := m.Dims()
	limit := math.Sqrt(6 / float64(r+c))
	m.Apply(func(_, _ int, _ float64) float64 { return (2*rng.Float64() - 1) * limit }, m)
}

func fill(m *mat.Dense, v float64) {
	m.Apply(func(_, _ int, _ float64) float64 { return v }, m)
}

// List returns every matrix in a fixed order shared with Names.
func (p *Params) List() []*mat.Dense {
	out := []*mat.Dense{p.win, p.bin, p.pos}
	for _, b := range p.blocks {
		out = append(out,
			b.ln1g, b.ln1b, b.wq, b.bq, b.wk, b.bk, b.wv, b.bv, b.wo, b.bo,
			b.ln2g, b.ln2b, b.w1, b.b1, b.w2, b.b2)
	}
	return append(out, p.wout, p.bout)
}

// Names labels the matrices returned by List.
func (p *Params) Names() []string {
	out := []string{"input.weight", "input.bias", "position"}
	for i := range p.blocks {
		for _, n := range []string{
			"ln1.gain", "ln1.bias", "attn.q.weight", "attn.q.bias", "attn.k.weight", "attn.k.bias",
			"attn.v.weight", "attn.v.bias", "attn.out.weight", "attn.out.bias",
			"ln2.gain", "ln2.bias", "ff1.weight", "ff1.bias", "ff2.weight", "ff2.bias",
		} {
			out = append(out, fmt.Sprintf("block%d.%s", i, n))
		}
	}
	return append(out, "head.weight", "head.bias")
}

// Count returns the number of scalar parameters.
func (p *Params) Count() int {
	n := 0
	for _, m := range p.List() {
		r, c := m.Dims()
		n += r * c
	}
	return n
}

type tensorJSON struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

type paramsJSON struct {
	Config  Config       `json:"config"`
	Tensors []tensorJSON `json:"tensors"`
}

func (p *Params) encode(c Config) ([]byte, error) {
	names := p.Names()
	out := paramsJSON{Config: c, Tensors: make([]tensorJSON, 0, len(names))}
	for i, m := range p.List() {
		r, cols := m.Dims()
		out.Tensors = append(out.Tensors, tensorJSON{
			Name: names[i], Rows: r, Cols: cols,
			Data: append([]float64(nil), m.RawMatrix().Data...),
		})
	}
	return json.Marshal(out)
}

func decodeParams(data []byte) (Config, *Params, error) {
	var raw paramsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, nil, fmt.Errorf("model: decode params: %w", err)
	}
	if err := raw.Config.Validate(); err != nil {
		return Config{}, nil, err
	}
	p := newParams(raw.Config)
	list, names := p.List(), p.Names()
	if len(raw.Tensors) != len(list) {
		return Config{}, nil, fmt.Errorf("model: decode params: %d tensors, want %d", len(raw.Tensors), len(list))
	}
	for i, m := range list {
		t := raw.Tensors[i]
		r, c := m.Dims()
		if t.Name != names[i] || t.Rows != r || t.Cols != c || len(t.Data) != r*c {
			return Config{}, nil, fmt.Errorf("model: decode params: tensor %q is %dx%d, want %q %dx%d",
				t.Name, t.Rows, t.Cols, names[i], r, c)
		}
		copy(m.RawMatrix().Data, t.Data)
	}
	return raw.Config, p, nil
}
