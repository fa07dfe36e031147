package state_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/internal/state"
	"github.com/atlas-desktop/watchtower/pkg/types"
)

func TestParseSwitch(t *testing.T) {
	cases := []struct {
		token string
		want  bool
	}{
		{"ON", true},
		{"on", true},
		{"OFF", false},
		{"off", false},
		{" OFF ", false},
		{"", true},
		{"  ", true},       // blank behaves identically to ON
		{"garbage", true},  // unrecognized tokens default to enabled
		{"0", true},
	}
	for _, tc := range cases {
		if got := state.ParseSwitch(tc.token); got != tc.want {
			t.Errorf("ParseSwitch(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

func TestParseAlertDate(t *testing.T) {
	if got := state.ParseAlertDate("2024-01-05"); got.Format(state.DateLayout) != "2024-01-05" {
		t.Errorf("ParseAlertDate = %v", got)
	}
	for _, token := range []string{"", "  ", "05/01/2024", "not a date"} {
		if got := state.ParseAlertDate(token); !got.IsZero() {
			t.Errorf("ParseAlertDate(%q) = %v, want zero", token, got)
		}
	}
}

func newTestStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store, err := state.NewSQLiteStore(zap.NewNop(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestInstrumentRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inst := types.Instrument{Symbol: "2330.TW", Name: "TSMC", Market: "TWSE", Link: "https://tw.stock.yahoo.com/q/q?s=2330"}
	if err := store.UpsertInstrument(ctx, inst); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	list, err := store.ListInstruments(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 || list[0] != inst {
		t.Errorf("unexpected list: %+v", list)
	}

	if err := store.RemoveInstrument(ctx, inst.Symbol); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	list, err = store.ListInstruments(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list after remove, got %+v", list)
	}

	if err := store.RemoveInstrument(ctx, inst.Symbol); !errors.Is(err, types.ErrInstrumentUnknown) {
		t.Errorf("removing an unknown symbol: err = %v", err)
	}
}

func TestSignalStateDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A never-seen pair reads as enabled, never alerted.
	st, err := store.SignalState(ctx, "AAPL", types.RuleKD)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !st.Enabled {
		t.Error("absent record must default to enabled")
	}
	if !st.LastAlert.IsZero() {
		t.Error("absent record must read as never alerted")
	}
}

func TestSwitchPersistence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetSwitch(ctx, "AAPL", types.RuleMACD, "off"); err != nil {
		t.Fatalf("set switch failed: %v", err)
	}
	st, err := store.SignalState(ctx, "AAPL", types.RuleMACD)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if st.Enabled {
		t.Error("switch 'off' must disable the pair")
	}

	// Another rule on the same instrument is unaffected.
	st, err = store.SignalState(ctx, "AAPL", types.RuleKD)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !st.Enabled {
		t.Error("other rules must stay enabled")
	}
}

func TestApplyBatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := types.EvaluationBatch{
		RunID: "run-1",
		Date:  time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Mutations: []types.Mutation{
			{Symbol: "AAPL", Rule: types.RuleKD, Field: types.FieldLastAlertDate, Value: "2024-01-05"},
			{Symbol: "AAPL", Rule: types.RuleKD, Field: types.FieldSignal, Value: "KD golden cross"},
			{Symbol: "AAPL", Field: types.FieldLatestClose, Value: "185.32"},
			{Symbol: "AAPL", Field: types.FieldTangle, Value: "bullish divergent"},
		},
	}
	if err := store.ApplyBatch(ctx, batch); err != nil {
		t.Fatalf("apply batch failed: %v", err)
	}

	st, err := store.SignalState(ctx, "AAPL", types.RuleKD)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if st.LastAlert.Format(state.DateLayout) != "2024-01-05" {
		t.Errorf("last alert date not applied: %v", st.LastAlert)
	}
	if !st.Enabled {
		t.Error("batch write must not flip the switch")
	}
}

func TestApplyBatchUnknownField(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := types.EvaluationBatch{
		RunID: "run-2",
		Mutations: []types.Mutation{
			{Symbol: "AAPL", Rule: types.RuleKD, Field: "bogus", Value: "x"},
		},
	}
	if err := store.ApplyBatch(ctx, batch); err == nil {
		t.Error("unknown field must fail the batch")
	}
}

func TestApplyBatchEmpty(t *testing.T) {
	store := newTestStore(t)
	if err := store.ApplyBatch(context.Background(), types.EvaluationBatch{RunID: "run-3"}); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}
