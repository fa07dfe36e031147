// Package signal classifies the relative ordering of two indicator lines.
package signal

import (
	"fmt"
	"math"
)

// Classification is the fixed signal vocabulary.
type Classification string

const (
	GoldenCross          Classification = "golden_cross"
	DeathCross           Classification = "death_cross"
	BullishContinuation  Classification = "bullish_continuation"
	BearishContinuation  Classification = "bearish_continuation"
	NoSignal             Classification = "no_signal"
	InsufficientData     Classification = "insufficient_data"
)

// IsTransition reports whether the classification is a fresh crossing, the
// only kind of event the dedup gate considers alert-worthy.
func (c Classification) IsTransition() bool {
	return c == GoldenCross || c == DeathCross
}

// Text renders a human-readable label for a rule, e.g. "KD golden cross".
func (c Classification) Text(label string) string {
	switch c {
	case GoldenCross:
		return fmt.Sprintf("%s golden cross", label)
	case DeathCross:
		return fmt.Sprintf("%s death cross", label)
	case BullishContinuation:
		return fmt.Sprintf("%s bullish continuation", label)
	case BearishContinuation:
		return fmt.Sprintf("%s bearish continuation", label)
	case InsufficientData:
		return fmt.Sprintf("%s insufficient data", label)
	default:
		return fmt.Sprintf("%s no signal", label)
	}
}

// Classify compares the current and prior values of a fast line (a) against a
// slow line (b):
//
//	a > b with prior a <= b  -> golden cross (transition)
//	a < b with prior a >= b  -> death cross (transition)
//	a > b with prior a > b   -> bullish continuation
//	a < b with prior a < b   -> bearish continuation
//
// Any NaN input classifies as InsufficientData; remaining equality ties fall
// through to NoSignal.
func Classify(currA, currB, prevA, prevB float64) Classification {
	if math.IsNaN(currA) || math.IsNaN(currB) || math.IsNaN(prevA) || math.IsNaN(prevB) {
		return InsufficientData
	}

	switch {
	case currA > currB && prevA <= prevB:
		return GoldenCross
	case currA < currB && prevA >= prevB:
		return DeathCross
	case currA > currB && prevA > prevB:
		return BullishContinuation
	case currA < currB && prevA < prevB:
		return BearishContinuation
	default:
		return NoSignal
	}
}
