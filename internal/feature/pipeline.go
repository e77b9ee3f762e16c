package feature

import (
	"fmt"
	"math"

	"github.com/your-org/bar-forecast/internal/indicator"
)

// Options holds the indicator windows used by Build.
type Options struct {
	RSIPeriod       int
	MACDShort       int
	MACDLong        int
	MACDSignal      int
	ATRPeriod       int
	BollingerWindow int
	BollingerK      float64
	EMASpan         int
	StochWindow     int
}

// DefaultOptions returns the documented default windows.
func DefaultOptions() Options {
	return Options{
		RSIPeriod:       14,
		MACDShort:       12,
		MACDLong:        26,
		MACDSignal:      9,
		ATRPeriod:       14,
		BollingerWindow: 20,
		BollingerK:      2,
		EMASpan:         20,
		StochWindow:     14,
	}
}

// Build validates bars, computes lags and indicators, back-fills each column once
// and drops rows that are still missing a value. Rows are never reordered.
func Build(bars []Bar, opts Options) (*Table, error) {
	if err := ValidateBars(bars); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("feature: no bars: %w", ErrInsufficientData)
	}

	n := len(bars)
	var cols [NumColumns][]float64
	for c := range cols {
		cols[c] = make([]float64, n)
	}
	for i, b := range bars {
		cols[Open][i] = b.Open
		cols[High][i] = b.High
		cols[Low][i] = b.Low
		cols[Close][i] = b.Close
		cols[Volume][i] = b.Volume
	}
	if err := computeIndicators(&cols, opts); err != nil {
		return nil, err
	}
	for k := 1; k <= NumLags; k++ {
		cols[lagColumn(k)] = shift(cols[Close], k)
	}

	for c := range cols {
		backfill(cols[c])
	}

	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		row := Row{Time: bars[i].Time}
		complete := true
		for c := range cols {
			v := cols[c][i]
			if math.IsNaN(v) {
				complete = false
				break
			}
			row.Values[c] = v
		}
		if complete {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("feature: %d bars leave no complete row: %w", n, ErrInsufficientData)
	}
	return NewTable(rows)
}

func computeIndicators(cols *[NumColumns][]float64, o Options) error {
	high, low, close, volume := cols[High], cols[Low], cols[Close], cols[Volume]

	rsi, err := indicator.RSI(close, o.RSIPeriod)
	if err != nil {
		return fmt.Errorf("feature: rsi: %w", err)
	}
	macd, err := indicator.MACD(close, o.MACDShort, o.MACDLong, o.MACDSignal)
	if err != nil {
		return fmt.Errorf("feature: macd: %w", err)
	}
	atr, err := indicator.ATR(high, low, close, o.ATRPeriod)
	if err != nil {
		return fmt.Errorf("feature: atr: %w", err)
	}
	bb, err := indicator.Bollinger(close, o.BollingerWindow, o.BollingerK)
	if err != nil {
		return fmt.Errorf("feature: bollinger: %w", err)
	}
	ema, err := indicator.EMA(close, o.EMASpan)
	if err != nil {
		return fmt.Errorf("feature: ema: %w", err)
	}
	stoch, err := indicator.Stochastic(high, low, close, o.StochWindow)
	if err != nil {
		return fmt.Errorf("feature: stochastic: %w", err)
	}
	obv, err := indicator.OBV(close, volume)
	if err != nil {
		return fmt.Errorf("feature: obv: %w", err)
	}

	cols[RSI] = rsi
	cols[MACD] = macd.MACD
	cols[MACDSignal] = macd.Signal
	cols[MACDHist] = macd.Histogram
	cols[ATR] = atr
	cols[BollingerUpper] = bb.Upper
	cols[BollingerMiddle] = bb.Middle
	cols[BollingerLower] = bb.Lower
	cols[EMA] = ema
	cols[StochK] = stoch
	cols[OBV] = obv
	return nil
}

// shift returns series delayed by k steps; the first k entries are NaN.
func shift(series []float64, k int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		if i < k {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[i-k]
	}
	return out
}

// backfill replaces each NaN with the next valid value, in place.
func backfill(series []float64) {
	next := math.NaN()
	for i := len(series) - 1; i >= 0; i-- {
		if math.IsNaN(series[i]) {
			series[i] = next
			continue
		}
		next = series[i]
	}
}
