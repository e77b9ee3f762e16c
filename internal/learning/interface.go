package learning

import "gonum.org/v1/gonum/mat"

// Modelは学習ループが扱うモデルのインターフェースです。
type Model interface {
	// Forwardは1ウィンドウの予測値と、勾配を蓄積するbackward関数を返します。
	Forward(x [][]float64, train bool) (float64, func(dOut float64), error)
	// ZeroGradは勾配をゼロに戻します。
	ZeroGrad()
	// ParamsはオプティマイザがIn-placeで更新するパラメータを返します。
	Params() []*mat.Dense
	// GradsはParamsと同じ順序の勾配を返します。
	Grads() []*mat.Dense
	// Versionはモデルのバージョンを返します。
	Version() string
}

// Objectiveはバッチの損失と予測値ごとの勾配を計算します。
type Objective interface {
	Evaluate(pred, target []float64) (float64, []float64, error)
}

// Batchはミニバッチです。
type Batch struct {
	Inputs  [][][]float64
	Targets []float64
}

// Len returns the batch size.
func (b Batch) Len() int {
	return len(b.Targets)
}

// BatchIteratorはエポックごとにミニバッチを返すイテレータです。
type BatchIterator interface {
	// Resetはエポックの先頭に戻します。シャッフルはepochをシードに使います。
	Reset(epoch int)
	// Nextは次のバッチを返します。エポック終端ではfalseを返します。
	Next() (Batch, bool)
}

// Recorderは学習の進捗を受け取ります（Prometheusなど）。
type Recorder interface {
	ObserveBatch(loss float64)
	ObserveEpoch(stats EpochStats)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBatch(float64)    {}
func (nopRecorder) ObserveEpoch(EpochStats) {}
