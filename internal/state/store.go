// Package state persists per-(instrument, rule) signal state: the alert
// switch, the last-alert date, and the display snapshot columns.
package state

import (
	"context"
	"strings"
	"time"

	"github.com/atlas-desktop/watchtower/pkg/types"
)

// DateLayout is the persisted calendar-date token format.
const DateLayout = "2006-01-02"

// Store is the engine's view of the external tabular store.
type Store interface {
	// ListInstruments returns the watch-list.
	ListInstruments(ctx context.Context) ([]types.Instrument, error)

	// SignalState returns the record for one (instrument, rule) pair. A pair
	// never seen before reads as the default record (enabled, never alerted).
	SignalState(ctx context.Context, symbol string, rule types.Rule) (types.SignalState, error)

	// ApplyBatch writes all mutations of one run in a single batched write.
	ApplyBatch(ctx context.Context, batch types.EvaluationBatch) error
}

// ParseSwitch interprets a persisted switch token. Only a case-insensitive
// "OFF" disables alerts; anything else, including blank or malformed values,
// reads as enabled so new instruments alert by default.
func ParseSwitch(token string) bool {
	return strings.ToUpper(strings.TrimSpace(token)) != "OFF"
}

// ParseAlertDate interprets a persisted YYYY-MM-DD token. Blank or garbled
// tokens read as the zero time, meaning "never alerted".
func ParseAlertDate(token string) time.Time {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}
	}
	d, err := time.Parse(DateLayout, token)
	if err != nil {
		return time.Time{}
	}
	return d
}
