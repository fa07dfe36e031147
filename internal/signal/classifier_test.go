package signal_test

import (
	"math"
	"testing"

	"github.com/atlas-desktop/watchtower/internal/signal"
)

func TestClassifyTable(t *testing.T) {
	nan := math.NaN()

	cases := []struct {
		name                       string
		currA, currB, prevA, prevB float64
		want                       signal.Classification
		transition                 bool
	}{
		{"golden cross from below", 12, 10, 9, 10, signal.GoldenCross, true},
		{"golden cross from tie", 12, 10, 10, 10, signal.GoldenCross, true},
		{"death cross from above", 9, 10, 12, 10, signal.DeathCross, true},
		{"death cross from tie", 9, 10, 10, 10, signal.DeathCross, true},
		{"bullish continuation", 12, 10, 11, 10, signal.BullishContinuation, false},
		{"bearish continuation", 8, 10, 9, 10, signal.BearishContinuation, false},
		{"current tie", 10, 10, 9, 10, signal.NoSignal, false},
		{"all equal", 10, 10, 10, 10, signal.NoSignal, false},
		{"nan current fast", nan, 10, 9, 10, signal.InsufficientData, false},
		{"nan current slow", 12, nan, 9, 10, signal.InsufficientData, false},
		{"nan prev fast", 12, 10, nan, 10, signal.InsufficientData, false},
		{"nan prev slow", 12, 10, 9, nan, signal.InsufficientData, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := signal.Classify(tc.currA, tc.currB, tc.prevA, tc.prevB)
			if got != tc.want {
				t.Errorf("Classify(%v,%v,%v,%v) = %v, want %v",
					tc.currA, tc.currB, tc.prevA, tc.prevB, got, tc.want)
			}
			if got.IsTransition() != tc.transition {
				t.Errorf("%v.IsTransition() = %v, want %v", got, got.IsTransition(), tc.transition)
			}
		})
	}
}

// Golden and death crosses must never both be reachable for one input.
func TestCrossExclusivity(t *testing.T) {
	values := []float64{-1, 0, 1}
	for _, a := range values {
		for _, b := range values {
			for _, pa := range values {
				for _, pb := range values {
					golden := a > b && pa <= pb
					death := a < b && pa >= pb
					if golden && death {
						t.Fatalf("inputs (%v,%v,%v,%v) satisfy both crossings", a, b, pa, pb)
					}
					got := signal.Classify(a, b, pa, pb)
					if golden && got != signal.GoldenCross {
						t.Errorf("(%v,%v,%v,%v): want golden cross, got %v", a, b, pa, pb, got)
					}
					if death && got != signal.DeathCross {
						t.Errorf("(%v,%v,%v,%v): want death cross, got %v", a, b, pa, pb, got)
					}
				}
			}
		}
	}
}

func TestClassificationText(t *testing.T) {
	if got := signal.GoldenCross.Text("KD"); got != "KD golden cross" {
		t.Errorf("unexpected text: %q", got)
	}
	if got := signal.BearishContinuation.Text("MACD"); got != "MACD bearish continuation" {
		t.Errorf("unexpected text: %q", got)
	}
	if got := signal.NoSignal.Text("MA5_MA10"); got != "MA5_MA10 no signal" {
		t.Errorf("unexpected text: %q", got)
	}
}
