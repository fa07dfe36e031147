// Package types provides shared type definitions for the watchtower service.
package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Rule identifies one crossover rule evaluated per instrument.
type Rule string

const (
	RuleKD      Rule = "KD"
	RuleMACD    Rule = "MACD"
	RuleMA5x10  Rule = "MA5_MA10"
	RuleMA5x20  Rule = "MA5_MA20"
	RuleMA10x20 Rule = "MA10_MA20"
)

// AllRules lists every rule in evaluation order.
func AllRules() []Rule {
	return []Rule{RuleKD, RuleMACD, RuleMA5x10, RuleMA5x20, RuleMA10x20}
}

// Instrument is one watch-list entry.
type Instrument struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name,omitempty"`
	Market string `json:"market,omitempty"` // "TWSE", "US", "HK", or empty
	Link   string `json:"link,omitempty"`   // display link, may be empty
}

// Bar represents a single daily candlestick.
type Bar struct {
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// PriceSeries is an ordered run of daily bars for one instrument.
// Dates must be strictly increasing; duplicates are a provider bug.
type PriceSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (p *PriceSeries) Len() int { return len(p.Bars) }

// Closes returns the close column as a float64 array for indicator math.
func (p *PriceSeries) Closes() []float64 {
	return p.column(func(b Bar) decimal.Decimal { return b.Close })
}

// Highs returns the high column as a float64 array.
func (p *PriceSeries) Highs() []float64 {
	return p.column(func(b Bar) decimal.Decimal { return b.High })
}

// Lows returns the low column as a float64 array.
func (p *PriceSeries) Lows() []float64 {
	return p.column(func(b Bar) decimal.Decimal { return b.Low })
}

func (p *PriceSeries) column(get func(Bar) decimal.Decimal) []float64 {
	out := make([]float64, len(p.Bars))
	for i, b := range p.Bars {
		out[i] = get(b).InexactFloat64()
	}
	return out
}

// Validate checks the strictly-increasing-dates invariant.
func (p *PriceSeries) Validate() error {
	for i := 1; i < len(p.Bars); i++ {
		if !p.Bars[i].Date.After(p.Bars[i-1].Date) {
			return fmt.Errorf("%w: bar %d (%s) not after bar %d (%s)",
				ErrUnorderedSeries, i, p.Bars[i].Date.Format("2006-01-02"),
				i-1, p.Bars[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// SignalState is the typed view of one persisted (instrument, rule) record.
// A zero LastAlert means the pair has never alerted.
type SignalState struct {
	Enabled   bool      `json:"enabled"`
	LastAlert time.Time `json:"lastAlert"`
}

// AlertedOn reports whether the record already alerted on the given calendar day.
func (s SignalState) AlertedOn(day time.Time) bool {
	if s.LastAlert.IsZero() {
		return false
	}
	return s.LastAlert.Format("2006-01-02") == day.Format("2006-01-02")
}

// Field names the logical columns of the external tabular store.
type Field string

const (
	FieldSignal        Field = "signal"
	FieldLastAlertDate Field = "last_alert_date"
	FieldLatestClose   Field = "latest_close"
	FieldSlope5        Field = "ma5_slope"
	FieldSlope10       Field = "ma10_slope"
	FieldSlope20       Field = "ma20_slope"
	FieldTangle        Field = "ma_tangle"
	FieldSlopeDesc     Field = "slope_desc"
	FieldDeviation     Field = "deviation_pct"
	FieldLowInterval   Field = "low_interval"
	FieldHighInterval  Field = "high_interval"
	FieldAlertDetail   Field = "alert_detail"
	FieldAlertTime     Field = "alert_time"
)

// Mutation is one pending cell write for the external store. Rule is empty for
// instrument-level fields (latest close, slopes, trend summary).
type Mutation struct {
	Symbol string `json:"symbol"`
	Rule   Rule   `json:"rule,omitempty"`
	Field  Field  `json:"field"`
	Value  string `json:"value"`
}

// EvaluationBatch collects the mutations of one engine run for a single
// batched write. Per-instrument failures never remove other instruments'
// mutations from the batch.
type EvaluationBatch struct {
	RunID     string     `json:"runId"`
	Date      time.Time  `json:"date"`
	Mutations []Mutation `json:"mutations"`
}

// AlertEvent is one alert-worthy rule evaluation, ephemeral to a run.
type AlertEvent struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Rule         Rule      `json:"rule"`
	SignalText   string    `json:"signalText"`
	TrendSummary string    `json:"trendSummary"`
	DeviationPct string    `json:"deviationPct"`
	LowInterval  int       `json:"lowInterval"`
	HighInterval int       `json:"highInterval"`
	Link         string    `json:"link,omitempty"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// Error taxonomy shared across packages.
var (
	// ErrDataUnavailable marks a price series that could not be fetched or is
	// too short to evaluate at all. The instrument is skipped for the run.
	ErrDataUnavailable = errors.New("price data unavailable")

	// ErrUnorderedSeries marks a series violating the increasing-dates invariant.
	ErrUnorderedSeries = errors.New("price series dates not strictly increasing")

	// ErrInstrumentUnknown marks a symbol absent from the watch-list store.
	ErrInstrumentUnknown = errors.New("instrument not in watch-list")
)
