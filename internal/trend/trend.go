// Package trend derives qualitative descriptors from moving-average series:
// regression slopes, the multi-line tangle state, price deviation, and
// distance to prior extremes.
package trend

import (
	"fmt"
	"math"
)

const (
	// SlopeLookback is the regression window over the most recent defined points.
	SlopeLookback = 5

	// tangleTolerance is the relative spread below which the averages count as
	// tangled (0.5%).
	tangleTolerance = 0.005

	// strongSlope is the magnitude threshold separating strong trends from noise.
	strongSlope = 0.005

	// NoExtreme is the sentinel interval meaning no more extreme point exists
	// in the available history.
	NoExtreme = 999
)

// Tangle states.
const (
	TangleTangled          = "tangled"
	TangleBullishDivergent = "bullish divergent"
	TangleBearishDivergent = "bearish divergent"
	TangleDivergent        = "divergent"
	TangleInsufficient     = "insufficient data"
)

// Slope descriptions.
const (
	SlopeAcceleratingBullish = "accelerating bullish"
	SlopeAcceleratingBearish = "accelerating bearish"
	SlopeChoppy              = "choppy"
	SlopeStandardBullish     = "standard bullish"
	SlopeStandardBearish     = "standard bearish"
	SlopeUnclear             = "unclear"
)

// ExtremeKind selects the comparison direction for ExtremeInterval.
type ExtremeKind int

const (
	ExtremeLow  ExtremeKind = iota // more extreme means strictly smaller
	ExtremeHigh                    // more extreme means strictly greater
)

// Slope returns the ordinary-least-squares slope of the last SlopeLookback
// defined points of series against x = 0..lookback-1. Fewer defined points
// than the lookback yields 0.0.
func Slope(series []float64, lookback int) float64 {
	if lookback < 2 {
		return 0.0
	}

	defined := make([]float64, 0, len(series))
	for _, v := range series {
		if !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	if len(defined) < lookback {
		return 0.0
	}

	y := defined[len(defined)-lookback:]
	n := float64(lookback)

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range y {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0.0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// TangleState classifies the latest values of the three moving averages.
// Values within 0.5% of their mean are tangled; otherwise the strict ordering
// decides between bullish/bearish divergence and a mixed spread.
func TangleState(ma5, ma10, ma20 float64) string {
	if math.IsNaN(ma5) || math.IsNaN(ma10) || math.IsNaN(ma20) {
		return TangleInsufficient
	}

	maxV := math.Max(ma5, math.Max(ma10, ma20))
	minV := math.Min(ma5, math.Min(ma10, ma20))
	mean := (ma5 + ma10 + ma20) / 3
	if mean == 0 {
		return TangleInsufficient
	}

	if (maxV-minV)/mean < tangleTolerance {
		return TangleTangled
	}
	switch {
	case ma5 > ma10 && ma10 > ma20:
		return TangleBullishDivergent
	case ma5 < ma10 && ma10 < ma20:
		return TangleBearishDivergent
	default:
		return TangleDivergent
	}
}

// SlopeDescription classifies the combined direction of the MA5/MA10/MA20
// slopes. Acceleration needs all three above the strong threshold and strictly
// ordered; disagreement between the short and long end, or two near-zero
// slopes, reads as choppy.
func SlopeDescription(s5, s10, s20 float64) string {
	if s5 > strongSlope && s10 > strongSlope && s20 > strongSlope && s5 > s10 && s10 > s20 {
		return SlopeAcceleratingBullish
	}
	if s5 < -strongSlope && s10 < -strongSlope && s20 < -strongSlope && s5 < s10 && s10 < s20 {
		return SlopeAcceleratingBearish
	}

	if sign(s5) != sign(s20) || (math.Abs(s5) < strongSlope && math.Abs(s10) < strongSlope) {
		return SlopeChoppy
	}

	if sign(s5) == 1 && sign(s10) == 1 && sign(s20) == 1 {
		return SlopeStandardBullish
	}
	if sign(s5) == -1 && sign(s10) == -1 && sign(s20) == -1 {
		return SlopeStandardBearish
	}
	return SlopeUnclear
}

// DeviationPct formats the relative distance of the latest close from a
// reference moving average. An undefined reference yields "N/A".
func DeviationPct(close, ma float64) string {
	if math.IsNaN(ma) || ma == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", (close/ma-1)*100)
}

// ExtremeInterval walks strictly backward from the most recent point of
// series and returns the number of periods until a value more extreme than
// currentExtreme. NoExtreme signals that no such point exists in the history.
func ExtremeInterval(series []float64, currentExtreme float64, kind ExtremeKind) int {
	if len(series) < 2 {
		return NoExtreme
	}

	last := len(series) - 1
	for i := last - 1; i >= 0; i-- {
		v := series[i]
		if math.IsNaN(v) {
			continue
		}
		if (kind == ExtremeLow && v < currentExtreme) ||
			(kind == ExtremeHigh && v > currentExtreme) {
			return last - i
		}
	}
	return NoExtreme
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
