package learning

import (
	"math/rand"
	"sync"
)

// SliceIteratorはメモリ上のサンプルをミニバッチに分けます。
// shuffleが有効な場合、エポックごとにseed+epochで並べ替えます（学習用）。
// 無効な場合は常に同じ順序です（検証用）。
type SliceIterator struct {
	inputs    [][][]float64
	targets   []float64
	batchSize int
	shuffle   bool
	seed      int64

	order []int
	pos   int
}

// NewSliceIteratorは新しいSliceIteratorを生成します。
func NewSliceIterator(inputs [][][]float64, targets []float64, batchSize int, shuffle bool, seed int64) *SliceIterator {
	if batchSize <= 0 {
		batchSize = 1
	}
	it := &SliceIterator{
		inputs:    inputs,
		targets:   targets,
		batchSize: batchSize,
		shuffle:   shuffle,
		seed:      seed,
		order:     make([]int, len(targets)),
	}
	it.Reset(0)
	return it
}

// Reset restarts the epoch.
func (it *SliceIterator) Reset(epoch int) {
	for i := range it.order {
		it.order[i] = i
	}
	if it.shuffle {
		rng := rand.New(rand.NewSource(it.seed + int64(epoch)))
		rng.Shuffle(len(it.order), func(i, j int) { it.order[i], it.order[j] = it.order[j], it.order[i] })
	}
	it.pos = 0
}

// Next returns the next batch of the epoch.
func (it *SliceIterator) Next() (Batch, bool) {
	if it.pos >= len(it.order) {
		return Batch{}, false
	}
	end := it.pos + it.batchSize
	if end > len(it.order) {
		end = len(it.order)
	}
	b := Batch{
		Inputs:  make([][][]float64, 0, end-it.pos),
		Targets: make([]float64, 0, end-it.pos),
	}
	for _, idx := range it.order[it.pos:end] {
		b.Inputs = append(b.Inputs, it.inputs[idx])
		b.Targets = append(b.Targets, it.targets[idx])
	}
	it.pos = end
	return b, true
}

// NumBatches returns the number of batches per epoch.
func (it *SliceIterator) NumBatches() int {
	return (len(it.targets) + it.batchSize - 1) / it.batchSize
}

// PrefetchIteratorは別goroutineで次のバッチを先読みします。
// 順序は元のイテレータと同じです。depthは先読みするバッチ数です。
type PrefetchIterator struct {
	inner BatchIterator
	depth int

	mu   sync.Mutex
	ch   chan Batch
	stop chan struct{}
	done chan struct{}
}

// NewPrefetchIteratorは新しいPrefetchIteratorを生成します。
func NewPrefetchIterator(inner BatchIterator, depth int) *PrefetchIterator {
	if depth <= 0 {
		depth = 1
	}
	return &PrefetchIterator{inner: inner, depth: depth}
}

// Resetは実行中の先読みを止めてから、新しいエポックの先読みを開始します。
func (p *PrefetchIterator) Reset(epoch int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halt()

	p.inner.Reset(epoch)
	ch := make(chan Batch, p.depth)
	stop := make(chan struct{})
	done := make(chan struct{})
	p.ch, p.stop, p.done = ch, stop, done

	go func() {
		defer close(done)
		defer close(ch)
		for {
			b, ok := p.inner.Next()
			if !ok {
				return
			}
			select {
			case ch <- b:
			case <-stop:
				return
			}
		}
	}()
}

// Next returns the next prefetched batch.
func (p *PrefetchIterator) Next() (Batch, bool) {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()
	if ch == nil {
		return Batch{}, false
	}
	b, ok := <-ch
	return b, ok
}

// Closeは先読みgoroutineを停止します。
func (p *PrefetchIterator) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halt()
}

func (p *PrefetchIterator) halt() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.ch, p.stop, p.done = nil, nil, nil
}
