// Copyright (c) 2024 Bar-Forecast
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package indicator computes technical indicators over ordered price and volume series.
//
// Every function returns a slice aligned 1:1 with its input. Entries that lack enough
// history are NaN; a window at least as long as the series yields an all-NaN result.
package indicator

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const epsilon = 1e-10

var (
	// ErrInvalidWindow is returned for a non-positive window or period.
	ErrInvalidWindow = errors.New("indicator: window must be positive")
	// ErrLengthMismatch is returned when paired series differ in length.
	ErrLengthMismatch = errors.New("indicator: series length mismatch")
)

// MACDResult holds the three MACD lines.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// BollingerResult holds the three Bollinger bands.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

func checkWindow(name string, w int) error {
	if w <= 0 {
		return fmt.Errorf("%w: %s=%d", ErrInvalidWindow, name, w)
	}
	return nil
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func hasNaN(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}

// rolling applies fn to every complete window ending at i. Windows containing NaN stay NaN.
func rolling(series []float64, window int, fn func([]float64) float64) []float64 {
	out := nanSlice(len(series))
	if window >= len(series) {
		return out
	}
	for i := window - 1; i < len(series); i++ {
		w := series[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		out[i] = fn(w)
	}
	return out
}

func rollingMean(series []float64, window int) []float64 {
	return rolling(series, window, func(w []float64) float64 { return stat.Mean(w, nil) })
}

// RSI returns the relative strength index using simple rolling means of gains and losses.
// The first defined value sits at index period.
func RSI(close []float64, period int) ([]float64, error) {
	if err := checkWindow("period", period); err != nil {
		return nil, err
	}
	n := len(close)
	if period >= n {
		return nanSlice(n), nil
	}
	gains := nanSlice(n)
	losses := nanSlice(n)
	for i := 1; i < n; i++ {
		d := close[i] - close[i-1]
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}
	avgGain := rollingMean(gains, period)
	avgLoss := rollingMean(losses, period)

	out := nanSlice(n)
	for i := range out {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			continue
		}
		rs := avgGain[i] / (avgLoss[i] + epsilon)
		out[i] = 100 - 100/(1+rs)
	}
	return out, nil
}

// EMA returns the recursive exponential moving average with alpha = 2/(span+1),
// seeded with the first finite value.
func EMA(series []float64, span int) ([]float64, error) {
	if err := checkWindow("span", span); err != nil {
		return nil, err
	}
	out := nanSlice(len(series))
	if span >= len(series) {
		return out, nil
	}
	alpha := 2.0 / (float64(span) + 1)
	seeded := false
	var prev float64
	for i, v := range series {
		if math.IsNaN(v) {
			if seeded {
				out[i] = prev
			}
			continue
		}
		if !seeded {
			prev, seeded = v, true
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out, nil
}

// MACD returns EMA(short)-EMA(long), its EMA(signal) and their difference.
func MACD(close []float64, short, long, signal int) (MACDResult, error) {
	if err := checkWindow("short", short); err != nil {
		return MACDResult{}, err
	}
	if err := checkWindow("long", long); err != nil {
		return MACDResult{}, err
	}
	if err := checkWindow("signal", signal); err != nil {
		return MACDResult{}, err
	}
	n := len(close)
	if long >= n || short >= n {
		return MACDResult{MACD: nanSlice(n), Signal: nanSlice(n), Histogram: nanSlice(n)}, nil
	}
	fast, _ := EMA(close, short)
	slow, _ := EMA(close, long)
	line := make([]float64, n)
	floats.SubTo(line, fast, slow)

	sig, _ := EMA(line, signal)
	hist := make([]float64, n)
	floats.SubTo(hist, line, sig)
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}, nil
}

// ATR returns the rolling mean of the true range. The first bar's true range is high-low.
func ATR(high, low, close []float64, period int) ([]float64, error) {
	if err := checkWindow("period", period); err != nil {
		return nil, err
	}
	if len(high) != len(close) || len(low) != len(close) {
		return nil, ErrLengthMismatch
	}
	n := len(close)
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		hl := high[i] - low[i]
		if i == 0 {
			tr[i] = hl
			continue
		}
		tr[i] = math.Max(hl, math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))
	}
	return rollingMean(tr, period), nil
}

// Bollinger returns the rolling mean plus and minus k sample standard deviations.
func Bollinger(close []float64, window int, k float64) (BollingerResult, error) {
	if err := checkWindow("window", window); err != nil {
		return BollingerResult{}, err
	}
	n := len(close)
	res := BollingerResult{Upper: nanSlice(n), Middle: nanSlice(n), Lower: nanSlice(n)}
	if window >= n {
		return res, nil
	}
	for i := window - 1; i < n; i++ {
		w := close[i-window+1 : i+1]
		if hasNaN(w) {
			continue
		}
		mean, std := stat.MeanStdDev(w, nil)
		res.Middle[i] = mean
		res.Upper[i] = mean + k*std
		res.Lower[i] = mean - k*std
	}
	return res, nil
}

// Stochastic returns %K: the close's position inside the rolling low/high range, scaled to 0-100.
func Stochastic(high, low, close []float64, window int) ([]float64, error) {
	if err := checkWindow("window", window); err != nil {
		return nil, err
	}
	if len(high) != len(close) || len(low) != len(close) {
		return nil, ErrLengthMismatch
	}
	n := len(close)
	out := nanSlice(n)
	if window >= n {
		return out, nil
	}
	for i := window - 1; i < n; i++ {
		lo := low[i-window+1 : i+1]
		hi := high[i-window+1 : i+1]
		if hasNaN(lo) || hasNaN(hi) || math.IsNaN(close[i]) {
			continue
		}
		minLow, maxHigh := floats.Min(lo), floats.Max(hi)
		out[i] = 100 * (close[i] - minLow) / (maxHigh - minLow + epsilon)
	}
	return out, nil
}

// OBV returns on-balance volume rebased so the first entry is zero.
func OBV(close, volume []float64) ([]float64, error) {
	if len(close) != len(volume) {
		return nil, ErrLengthMismatch
	}
	if len(close) == 0 {
		return []float64{}, nil
	}
	out := talib.Obv(close, volume)
	floats.AddConst(-volume[0], out)
	return out, nil
}
