package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/watchtower/internal/signal"
	"github.com/atlas-desktop/watchtower/internal/state"
	"github.com/atlas-desktop/watchtower/pkg/types"
)

// Decision is the dedup gate's verdict for one rule evaluation.
type Decision int

const (
	// DecisionNoEvent: the classification is not a fresh crossing; nothing to
	// alert, nothing to mutate.
	DecisionNoEvent Decision = iota

	// DecisionAlert: emit an alert and schedule the last-alert-date mutation.
	DecisionAlert

	// DecisionDeduplicated: a fresh crossing, but this pair already alerted
	// today.
	DecisionDeduplicated

	// DecisionSuppressed: a fresh crossing with the pair's switch off.
	DecisionSuppressed
)

// String names the decision for logs.
func (d Decision) String() string {
	switch d {
	case DecisionAlert:
		return "alert"
	case DecisionDeduplicated:
		return "deduplicated"
	case DecisionSuppressed:
		return "suppressed"
	default:
		return "no_event"
	}
}

// Gate decides, per (instrument, rule) evaluation, whether a classified
// signal is alert-worthy today. It reads the persisted record once and never
// writes; the caller owns the conditional mutation.
//
// The gate is oblivious to why a signal re-occurs on a later day: a new
// calendar day always re-arms it.
type Gate struct {
	store state.Store
}

// NewGate creates a gate over the given state store.
func NewGate(store state.Store) *Gate {
	return &Gate{store: store}
}

// Check applies the transition rules: continuations and undefined
// classifications are never gate-worthy; fresh crossings alert unless the
// switch is off or the pair already alerted on today's calendar date.
func (g *Gate) Check(ctx context.Context, symbol string, rule types.Rule, class signal.Classification, today time.Time) (Decision, error) {
	if !class.IsTransition() {
		return DecisionNoEvent, nil
	}

	record, err := g.store.SignalState(ctx, symbol, rule)
	if err != nil {
		return DecisionNoEvent, fmt.Errorf("gate read (%s, %s): %w", symbol, rule, err)
	}

	if !record.Enabled {
		return DecisionSuppressed, nil
	}
	if record.AlertedOn(today) {
		return DecisionDeduplicated, nil
	}
	return DecisionAlert, nil
}
