// Package links generates static display links for watch-list entries.
package links

import (
	"fmt"
	"strings"
)

// ForInstrument returns a quote page URL for a symbol based on its market.
// Unknown markets fall back to Google Finance.
func ForInstrument(symbol, market string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return "https://www.google.com"
	}

	switch strings.ToUpper(strings.TrimSpace(market)) {
	case "TWSE":
		return fmt.Sprintf("https://tw.stock.yahoo.com/q/q?s=%s", strings.TrimSuffix(symbol, ".TW"))
	case "US":
		return fmt.Sprintf("https://finance.yahoo.com/quote/%s", symbol)
	case "HK":
		return fmt.Sprintf("http://www.aastocks.com/tc/stocks/quote/quick-quote.aspx?symbol=%s", symbol)
	default:
		return fmt.Sprintf("https://www.google.com/finance/quote/%s", symbol)
	}
}
