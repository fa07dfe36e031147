package engine

import (
	"fmt"
	"strings"

	"github.com/atlas-desktop/watchtower/internal/trend"
	"github.com/atlas-desktop/watchtower/pkg/types"
)

// TrendSummary bundles the per-instrument descriptors shown in alerts and
// persisted to the display columns.
type TrendSummary struct {
	Slope5       float64
	Slope10      float64
	Slope20      float64
	Tangle       string
	SlopeDesc    string
	Deviation    string
	LowInterval  int
	HighInterval int
}

// Composer formats alert messages. Pure formatting: no I/O, no rate limiting.
type Composer struct {
	markdownLinks bool
}

// NewComposer creates a composer. With markdownLinks the instrument id is
// rendered as a Markdown hyperlink when a display link is available.
func NewComposer(markdownLinks bool) *Composer {
	return &Composer{markdownLinks: markdownLinks}
}

// Compose builds the multi-line alert message for one alert-worthy rule.
func (c *Composer) Compose(inst types.Instrument, signalText string, ts TrendSummary) string {
	id := inst.Symbol
	if c.markdownLinks && inst.Link != "" {
		id = fmt.Sprintf("[%s](%s)", inst.Symbol, inst.Link)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔔 **%s** indicator alert\n", id)
	fmt.Fprintf(&b, "-> Signal: %s (first trigger today)\n", signalText)
	fmt.Fprintf(&b, "-> MA trend: %s | %s\n", ts.Tangle, ts.SlopeDesc)
	fmt.Fprintf(&b, "-> Slopes: MA5:%.4f | MA10:%.4f | MA20:%.4f\n", ts.Slope5, ts.Slope10, ts.Slope20)
	fmt.Fprintf(&b, "-> Deviation: %s\n", ts.Deviation)
	fmt.Fprintf(&b, "-> Extremes: %s", c.extremes(ts))
	return b.String()
}

// extremes renders the low/high interval line, including only intervals for
// which a more extreme point was actually found.
func (c *Composer) extremes(ts TrendSummary) string {
	var parts []string
	if ts.LowInterval != trend.NoExtreme {
		parts = append(parts, fmt.Sprintf("lower low %d bars back", ts.LowInterval))
	}
	if ts.HighInterval != trend.NoExtreme {
		parts = append(parts, fmt.Sprintf("higher high %d bars back", ts.HighInterval))
	}
	if len(parts) == 0 {
		return "no notable extremes"
	}
	return strings.Join(parts, " | ")
}
