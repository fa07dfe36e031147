package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/internal/engine"
	"github.com/atlas-desktop/watchtower/internal/state"
	"github.com/atlas-desktop/watchtower/pkg/types"
)

type cannedProvider struct {
	series map[string]*types.PriceSeries
}

func (p *cannedProvider) Fetch(ctx context.Context, inst types.Instrument) (*types.PriceSeries, error) {
	return p.series[inst.Symbol], nil
}

type recordingNotifier struct {
	batches [][]types.AlertEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, alerts []types.AlertEvent) error {
	n.batches = append(n.batches, alerts)
	return nil
}

func crossingSeries(symbol string) *types.PriceSeries {
	start := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	series := &types.PriceSeries{Symbol: symbol}
	for i := 0; i < 40; i++ {
		price := 100.0
		if i == 39 {
			price = 110.0
		}
		series.Bars = append(series.Bars, types.Bar{
			Date:  start.AddDate(0, 0, i),
			Open:  decimal.NewFromFloat(price),
			High:  decimal.NewFromFloat(price + 1),
			Low:   decimal.NewFromFloat(price - 1),
			Close: decimal.NewFromFloat(price),
		})
	}
	return series
}

func newTestService(t *testing.T) (*Service, *state.SQLiteStore, *recordingNotifier) {
	t.Helper()
	store, err := state.NewSQLiteStore(zap.NewNop(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	provider := &cannedProvider{series: map[string]*types.PriceSeries{
		"2330.TW": crossingSeries("2330.TW"),
	}}
	notifier := &recordingNotifier{}
	eng := engine.New(zap.NewNop(), engine.Config{Workers: 2, MinBars: 30}, nil)

	svc, err := New(zap.NewNop(), store, provider, eng, notifier, nil, "UTC")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, store, notifier
}

func TestRunOnceDeliversAndPersists(t *testing.T) {
	svc, store, notifier := newTestService(t)
	ctx := context.Background()

	if err := store.UpsertInstrument(ctx, types.Instrument{Symbol: "2330.TW", Market: "TWSE"}); err != nil {
		t.Fatalf("seed watch-list: %v", err)
	}

	result, err := svc.RunOnce(ctx, "test")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(result.Alerts) == 0 {
		t.Fatal("expected alerts from the crossing series")
	}
	if len(notifier.batches) != 1 || len(notifier.batches[0]) != len(result.Alerts) {
		t.Fatalf("notifier batches = %d", len(notifier.batches))
	}

	// The batch is applied inside the run: an immediate re-run deduplicates.
	again, err := svc.RunOnce(ctx, "test")
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(again.Alerts) != 0 {
		t.Fatalf("second run emitted %d alerts, want 0", len(again.Alerts))
	}
}

func TestRunOnceEmptyWatchlist(t *testing.T) {
	svc, _, notifier := newTestService(t)

	result, err := svc.RunOnce(context.Background(), "test")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Evaluated != 0 || len(result.Alerts) != 0 {
		t.Errorf("empty watch-list produced work: %+v", result)
	}
	if len(notifier.batches) != 0 {
		t.Error("notifier called for empty run")
	}
}

func TestNewRejectsBadTimezone(t *testing.T) {
	_, err := New(zap.NewNop(), nil, nil, nil, nil, nil, "Nowhere/Nothing")
	if err == nil {
		t.Fatal("expected timezone error")
	}
}
