package engine

import (
	"strings"
	"testing"

	"github.com/atlas-desktop/watchtower/internal/trend"
	"github.com/atlas-desktop/watchtower/pkg/types"
)

func TestComposeMessage(t *testing.T) {
	c := NewComposer(false)
	inst := types.Instrument{Symbol: "2330.TW", Market: "TWSE"}
	ts := TrendSummary{
		Slope5:       0.1234,
		Slope10:      0.0567,
		Slope20:      -0.0012,
		Tangle:       trend.TangleBullishDivergent,
		SlopeDesc:    trend.SlopeStandardBullish,
		Deviation:    "3.21%",
		LowInterval:  trend.NoExtreme,
		HighInterval: 12,
	}

	msg := c.Compose(inst, "KD golden cross", ts)

	for _, want := range []string{
		"2330.TW",
		"KD golden cross",
		"first trigger today",
		trend.TangleBullishDivergent,
		"MA5:0.1234",
		"MA10:0.0567",
		"MA20:-0.0012",
		"3.21%",
		"higher high 12 bars back",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "lower low") {
		t.Errorf("sentinel low interval leaked into message:\n%s", msg)
	}
}

func TestComposeMarkdownLink(t *testing.T) {
	c := NewComposer(true)
	inst := types.Instrument{Symbol: "2330.TW", Link: "https://tw.stock.yahoo.com/q/q?s=2330"}

	msg := c.Compose(inst, "MACD death cross", TrendSummary{Deviation: "N/A", LowInterval: trend.NoExtreme, HighInterval: trend.NoExtreme})
	if !strings.Contains(msg, "[2330.TW](https://tw.stock.yahoo.com/q/q?s=2330)") {
		t.Errorf("expected markdown hyperlink:\n%s", msg)
	}

	// No link recorded: fall back to the bare symbol.
	msg = c.Compose(types.Instrument{Symbol: "AAPL"}, "MACD death cross", TrendSummary{LowInterval: trend.NoExtreme, HighInterval: trend.NoExtreme})
	if !strings.Contains(msg, "**AAPL**") {
		t.Errorf("expected bare symbol:\n%s", msg)
	}
}

func TestComposeNoExtremes(t *testing.T) {
	c := NewComposer(false)
	msg := c.Compose(types.Instrument{Symbol: "AAPL"}, "MA5/MA10 golden cross",
		TrendSummary{LowInterval: trend.NoExtreme, HighInterval: trend.NoExtreme})
	if !strings.Contains(msg, "no notable extremes") {
		t.Errorf("expected no-extremes line:\n%s", msg)
	}
}
