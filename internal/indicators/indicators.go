// Package indicators computes derived series from raw price history.
//
// Every function is a pure function of its inputs and returns an output
// aligned index-for-index with the input. Entries without enough lookback are
// math.NaN(); callers check with math.IsNaN rather than handling errors.
// Short input yields an all-NaN series, never a panic.
package indicators

import "math"

// Default parameters, matching the daily-bar rules the engine evaluates.
const (
	DefaultKPeriod    = 9  // raw %K lookback
	DefaultSmoothing  = 3  // SMA applied to raw %K and again for %D
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// SMA returns the simple moving average of series over a trailing window.
// Index i is NaN while i < period-1 or while the window still contains NaN.
func SMA(series []float64, period int) []float64 {
	out := nanSlice(len(series))
	if period < 1 || len(series) < period {
		return out
	}

	for i := period - 1; i < len(series); i++ {
		sum := 0.0
		defined := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(series[j]) {
				defined = false
				break
			}
			sum += series[j]
		}
		if defined {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// Stochastic returns the raw %K oscillator:
//
//	100 * (close - lowestLow) / (highestHigh - lowestLow)
//
// over a trailing kPeriod window. An index with a zero high-low range stays
// NaN to avoid dividing by zero.
func Stochastic(high, low, close []float64, kPeriod int) []float64 {
	n := len(close)
	out := nanSlice(n)
	if kPeriod < 1 || n < kPeriod || len(high) != n || len(low) != n {
		return out
	}

	for i := kPeriod - 1; i < n; i++ {
		hh := math.Inf(-1)
		ll := math.Inf(1)
		for j := i - kPeriod + 1; j <= i; j++ {
			if high[j] > hh {
				hh = high[j]
			}
			if low[j] < ll {
				ll = low[j]
			}
		}
		if hh-ll != 0 {
			out[i] = 100 * (close[i] - ll) / (hh - ll)
		}
	}
	return out
}

// StochasticKD returns the smoothed %K and %D lines: each stage is an SMA of
// the previous one with DefaultSmoothing.
func StochasticKD(high, low, close []float64, kPeriod int) (slowK, slowD []float64) {
	rawK := Stochastic(high, low, close, kPeriod)
	slowK = SMA(rawK, DefaultSmoothing)
	slowD = SMA(slowK, DefaultSmoothing)
	return slowK, slowD
}

// EMA returns the exponential moving average with smoothing 2/(span+1).
// The first defined output equals the first defined input (the recursive
// "adjust=false" form), so there is no NaN warmup beyond leading NaN input.
func EMA(series []float64, span int) []float64 {
	out := nanSlice(len(series))
	if span < 1 {
		return out
	}

	alpha := 2.0 / float64(span+1)
	prev := math.NaN()
	for i, v := range series {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(prev) {
			prev = v
		} else {
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// MACD returns the MACD line (fast EMA - slow EMA), the signal line (EMA of
// the MACD line), and the histogram (MACD - signal).
func MACD(close []float64, fast, slow, signal int) (macdLine, signalLine, histogram []float64) {
	emaFast := EMA(close, fast)
	emaSlow := EMA(close, slow)

	macdLine = nanSlice(len(close))
	for i := range close {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			macdLine[i] = emaFast[i] - emaSlow[i]
		}
	}

	signalLine = EMA(macdLine, signal)

	histogram = nanSlice(len(close))
	for i := range close {
		if !math.IsNaN(macdLine[i]) && !math.IsNaN(signalLine[i]) {
			histogram[i] = macdLine[i] - signalLine[i]
		}
	}
	return macdLine, signalLine, histogram
}

// Last returns the final value of a series, or NaN for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	return series[len(series)-1]
}

// Prev returns the next-to-last value of a series, or NaN when absent.
func Prev(series []float64) float64 {
	if len(series) < 2 {
		return math.NaN()
	}
	return series[len(series)-2]
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
