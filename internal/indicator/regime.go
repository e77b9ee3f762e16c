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

package indicator

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrDegenerateSeries is returned when a series has no variation to estimate from.
var ErrDegenerateSeries = errors.New("indicator: degenerate series")

// CalculateRealizedVolatility calculates the realized volatility of a series of prices.
// It is defined as the population standard deviation of the log returns.
func CalculateRealizedVolatility(prices []float64) float64 {
	if len(prices) < 2 {
		return 0.0
	}

	logReturns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(prices[i]/prices[i-1]))
	}
	if len(logReturns) == 0 {
		return 0.0
	}
	return stat.PopStdDev(logReturns, nil)
}

// CalculateHurstExponent estimates the Hurst exponent from the scaling of lagged differences:
// std(x[t+lag]-x[t]) ~ lag^H, fitted by least squares in log-log space over [minLag, maxLag).
// Works on levels (prices) or on a cumulated noise series; H≈0.5 for a random walk.
func CalculateHurstExponent(series []float64, minLag, maxLag int) (float64, error) {
	if minLag < 1 || maxLag <= minLag+1 {
		return 0.0, fmt.Errorf("%w: lags [%d, %d)", ErrInvalidWindow, minLag, maxLag)
	}
	if len(series) < maxLag {
		return 0.0, fmt.Errorf("not enough data to calculate Hurst exponent, got %d, need at least %d", len(series), maxLag)
	}

	logLags := make([]float64, 0, maxLag-minLag)
	logTau := make([]float64, 0, maxLag-minLag)
	diffs := make([]float64, len(series))
	for lag := minLag; lag < maxLag; lag++ {
		d := diffs[:len(series)-lag]
		for i := range d {
			d[i] = series[i+lag] - series[i]
		}
		tau := stat.PopStdDev(d, nil)
		if !(tau > 0) || math.IsInf(tau, 0) {
			continue
		}
		logLags = append(logLags, math.Log(float64(lag)))
		logTau = append(logTau, math.Log(tau))
	}
	if len(logLags) < 2 {
		return 0.0, ErrDegenerateSeries
	}
	_, slope := stat.LinearRegression(logLags, logTau, nil, false)
	return slope, nil
}
