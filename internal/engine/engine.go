// Package engine evaluates the watch-list against the crossover rules and
// produces alerts plus the mutation batch for the external store.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/internal/indicators"
	"github.com/atlas-desktop/watchtower/internal/signal"
	"github.com/atlas-desktop/watchtower/internal/state"
	"github.com/atlas-desktop/watchtower/internal/trend"
	"github.com/atlas-desktop/watchtower/internal/workers"
	"github.com/atlas-desktop/watchtower/pkg/metrics"
	"github.com/atlas-desktop/watchtower/pkg/types"
)

// Provider supplies daily price history for one instrument. Implementations
// own their retry policy; the engine treats any error as DataUnavailable for
// that instrument.
type Provider interface {
	Fetch(ctx context.Context, inst types.Instrument) (*types.PriceSeries, error)
}

// Config tunes one engine instance.
type Config struct {
	Workers       int  // bounded evaluation parallelism
	MinBars       int  // series shorter than this are skipped entirely
	MarkdownLinks bool // hyperlink instrument ids in alert messages
}

// Result is the outcome of one evaluation run.
type Result struct {
	RunID     string                `json:"runId"`
	Alerts    []types.AlertEvent    `json:"alerts"`
	Batch     types.EvaluationBatch `json:"batch"`
	Evaluated int                   `json:"evaluated"`
	Skipped   int                   `json:"skipped"`
	Duration  time.Duration         `json:"duration"`
}

// Engine runs the per-instrument pipeline: price series in, indicator series,
// classification, dedup gate, alert composition out.
type Engine struct {
	logger   *zap.Logger
	cfg      Config
	recorder *metrics.Recorder
	composer *Composer
}

// displayLabels render rule names inside signal text.
var displayLabels = map[types.Rule]string{
	types.RuleKD:      "KD",
	types.RuleMACD:    "MACD",
	types.RuleMA5x10:  "MA5/MA10",
	types.RuleMA5x20:  "MA5/MA20",
	types.RuleMA10x20: "MA10/MA20",
}

// New creates an engine. recorder may be nil to disable instrumentation.
func New(logger *zap.Logger, cfg Config, recorder *metrics.Recorder) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MinBars < 2 {
		cfg.MinBars = 30
	}
	return &Engine{
		logger:   logger,
		cfg:      cfg,
		recorder: recorder,
		composer: NewComposer(cfg.MarkdownLinks),
	}
}

// instrumentOutcome is one instrument's contribution to a run.
type instrumentOutcome struct {
	alerts    []types.AlertEvent
	mutations []types.Mutation
	err       error
}

// Evaluate runs every (instrument, rule) pair once for the given calendar
// date. A single instrument's failure is logged and skipped; mutations of
// successful instruments are always part of the returned batch. The caller
// applies the batch and delivers the alerts.
func (e *Engine) Evaluate(ctx context.Context, instruments []types.Instrument, provider Provider, store state.Store, today time.Time) (*Result, error) {
	start := time.Now()
	runID := uuid.New().String()
	gate := NewGate(store)

	e.logger.Info("starting evaluation run",
		zap.String("run_id", runID),
		zap.Int("instruments", len(instruments)),
		zap.String("date", today.Format(state.DateLayout)))

	outcomes := make([]instrumentOutcome, len(instruments))

	pool := workers.NewPool(e.logger, workers.PoolConfig{
		Name:       "evaluate",
		NumWorkers: e.cfg.Workers,
		QueueSize:  len(instruments) + 1,
	})
	pool.Start()

	var mu sync.Mutex
	for i, inst := range instruments {
		i, inst := i, inst
		err := pool.SubmitFunc(func(taskCtx context.Context) error {
			outcome := e.evaluateInstrument(ctx, inst, provider, gate, today)
			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()
			return outcome.err
		})
		if err != nil {
			outcomes[i] = instrumentOutcome{err: err}
		}
	}
	pool.Wait()
	pool.Stop()

	result := &Result{
		RunID: runID,
		Batch: types.EvaluationBatch{RunID: runID, Date: today},
	}
	for i, outcome := range outcomes {
		if outcome.err != nil {
			result.Skipped++
			e.record(func(r *metrics.Recorder) { r.RecordInstrument("skipped") })
			e.logger.Warn("instrument skipped",
				zap.String("run_id", runID),
				zap.String("symbol", instruments[i].Symbol),
				zap.Error(outcome.err))
			continue
		}
		result.Evaluated++
		e.record(func(r *metrics.Recorder) { r.RecordInstrument("evaluated") })
		result.Alerts = append(result.Alerts, outcome.alerts...)
		result.Batch.Mutations = append(result.Batch.Mutations, outcome.mutations...)
	}

	result.Duration = time.Since(start)
	e.record(func(r *metrics.Recorder) { r.RecordRun(result.Duration.Seconds()) })

	e.logger.Info("evaluation run finished",
		zap.String("run_id", runID),
		zap.Int("evaluated", result.Evaluated),
		zap.Int("skipped", result.Skipped),
		zap.Int("alerts", len(result.Alerts)),
		zap.Int("mutations", len(result.Batch.Mutations)),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// evaluateInstrument runs the full pipeline for one instrument. The returned
// outcome carries either an error (instrument skipped) or the alerts and
// mutations to merge into the run.
func (e *Engine) evaluateInstrument(ctx context.Context, inst types.Instrument, provider Provider, gate *Gate, today time.Time) instrumentOutcome {
	series, err := provider.Fetch(ctx, inst)
	if err != nil {
		e.record(func(r *metrics.Recorder) { r.RecordProviderError() })
		return instrumentOutcome{err: fmt.Errorf("%w: %s: %v", types.ErrDataUnavailable, inst.Symbol, err)}
	}
	if series.Len() < e.cfg.MinBars {
		return instrumentOutcome{err: fmt.Errorf("%w: %s: %d bars, need %d",
			types.ErrDataUnavailable, inst.Symbol, series.Len(), e.cfg.MinBars)}
	}
	if err := series.Validate(); err != nil {
		return instrumentOutcome{err: fmt.Errorf("%s: %w", inst.Symbol, err)}
	}

	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()

	ma5 := indicators.SMA(closes, 5)
	ma10 := indicators.SMA(closes, 10)
	ma20 := indicators.SMA(closes, 20)
	slowK, slowD := indicators.StochasticKD(highs, lows, closes, indicators.DefaultKPeriod)
	macdLine, signalLine, _ := indicators.MACD(closes,
		indicators.DefaultMACDFast, indicators.DefaultMACDSlow, indicators.DefaultMACDSignal)

	latestClose := closes[len(closes)-1]
	summary := TrendSummary{
		Slope5:       trend.Slope(ma5, trend.SlopeLookback),
		Slope10:      trend.Slope(ma10, trend.SlopeLookback),
		Slope20:      trend.Slope(ma20, trend.SlopeLookback),
		Tangle:       trend.TangleState(indicators.Last(ma5), indicators.Last(ma10), indicators.Last(ma20)),
		Deviation:    trend.DeviationPct(latestClose, indicators.Last(ma20)),
		LowInterval:  trend.ExtremeInterval(lows, lows[len(lows)-1], trend.ExtremeLow),
		HighInterval: trend.ExtremeInterval(highs, highs[len(highs)-1], trend.ExtremeHigh),
	}
	summary.SlopeDesc = trend.SlopeDescription(summary.Slope5, summary.Slope10, summary.Slope20)

	pairs := []struct {
		rule types.Rule
		a, b []float64
	}{
		{types.RuleKD, slowK, slowD},
		{types.RuleMACD, macdLine, signalLine},
		{types.RuleMA5x10, ma5, ma10},
		{types.RuleMA5x20, ma5, ma20},
		{types.RuleMA10x20, ma10, ma20},
	}

	outcome := instrumentOutcome{}
	var detail []string

	for _, p := range pairs {
		class := signal.Classify(
			indicators.Last(p.a), indicators.Last(p.b),
			indicators.Prev(p.a), indicators.Prev(p.b))
		text := class.Text(displayLabels[p.rule])

		if class != signal.InsufficientData {
			outcome.mutations = append(outcome.mutations, types.Mutation{
				Symbol: inst.Symbol, Rule: p.rule, Field: types.FieldSignal, Value: text,
			})
		}
		if class.IsTransition() {
			detail = append(detail, text)
		}

		decision, err := gate.Check(ctx, inst.Symbol, p.rule, class, today)
		if err != nil {
			// One unreadable record only loses this rule, not the instrument.
			e.logger.Warn("gate check failed",
				zap.String("symbol", inst.Symbol),
				zap.String("rule", string(p.rule)),
				zap.Error(err))
			continue
		}

		switch decision {
		case DecisionAlert:
			event := types.AlertEvent{
				ID:           uuid.New().String(),
				Symbol:       inst.Symbol,
				Rule:         p.rule,
				SignalText:   text,
				TrendSummary: fmt.Sprintf("%s | %s", summary.Tangle, summary.SlopeDesc),
				DeviationPct: summary.Deviation,
				LowInterval:  summary.LowInterval,
				HighInterval: summary.HighInterval,
				Link:         inst.Link,
				Message:      e.composer.Compose(inst, text, summary),
				Timestamp:    time.Now(),
			}
			outcome.alerts = append(outcome.alerts, event)
			outcome.mutations = append(outcome.mutations, types.Mutation{
				Symbol: inst.Symbol, Rule: p.rule,
				Field: types.FieldLastAlertDate, Value: today.Format(state.DateLayout),
			})
			e.record(func(r *metrics.Recorder) { r.RecordAlert(string(p.rule), metrics.OutcomeEmitted) })
			e.logger.Info("alert emitted",
				zap.String("symbol", inst.Symbol),
				zap.String("rule", string(p.rule)),
				zap.String("signal", text))

		case DecisionDeduplicated:
			e.record(func(r *metrics.Recorder) { r.RecordAlert(string(p.rule), metrics.OutcomeDeduplicated) })
			e.logger.Info("alert deduplicated: already sent today",
				zap.String("symbol", inst.Symbol),
				zap.String("rule", string(p.rule)))

		case DecisionSuppressed:
			e.record(func(r *metrics.Recorder) { r.RecordAlert(string(p.rule), metrics.OutcomeSuppressed) })
			e.logger.Info("alert suppressed by switch",
				zap.String("symbol", inst.Symbol),
				zap.String("rule", string(p.rule)))
		}
	}

	outcome.mutations = append(outcome.mutations, e.snapshotMutations(inst.Symbol, latestClose, summary, detail, len(outcome.alerts) > 0)...)
	return outcome
}

// snapshotMutations builds the instrument-level display columns.
func (e *Engine) snapshotMutations(symbol string, latestClose float64, ts TrendSummary, detail []string, alerted bool) []types.Mutation {
	muts := []types.Mutation{
		{Symbol: symbol, Field: types.FieldLatestClose, Value: strconv.FormatFloat(latestClose, 'f', 2, 64)},
		{Symbol: symbol, Field: types.FieldSlope5, Value: strconv.FormatFloat(ts.Slope5, 'f', 4, 64)},
		{Symbol: symbol, Field: types.FieldSlope10, Value: strconv.FormatFloat(ts.Slope10, 'f', 4, 64)},
		{Symbol: symbol, Field: types.FieldSlope20, Value: strconv.FormatFloat(ts.Slope20, 'f', 4, 64)},
		{Symbol: symbol, Field: types.FieldTangle, Value: ts.Tangle},
		{Symbol: symbol, Field: types.FieldSlopeDesc, Value: ts.SlopeDesc},
		{Symbol: symbol, Field: types.FieldDeviation, Value: ts.Deviation},
		{Symbol: symbol, Field: types.FieldLowInterval, Value: strconv.Itoa(ts.LowInterval)},
		{Symbol: symbol, Field: types.FieldHighInterval, Value: strconv.Itoa(ts.HighInterval)},
	}
	if len(detail) > 0 {
		muts = append(muts, types.Mutation{
			Symbol: symbol, Field: types.FieldAlertDetail, Value: joinDetail(detail),
		})
	}
	if alerted {
		muts = append(muts, types.Mutation{
			Symbol: symbol, Field: types.FieldAlertTime, Value: time.Now().Format("2006-01-02 15:04:05"),
		})
	}
	return muts
}

func joinDetail(detail []string) string {
	out := detail[0]
	for _, d := range detail[1:] {
		out += "; " + d
	}
	return out
}

// record runs fn when instrumentation is enabled.
func (e *Engine) record(fn func(*metrics.Recorder)) {
	if e.recorder != nil {
		fn(e.recorder)
	}
}
