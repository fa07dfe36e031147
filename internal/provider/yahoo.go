// Package provider fetches daily price history from the Yahoo Finance chart
// endpoint, with retries and a pluggable series cache in front.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/pkg/types"
)

// Yahoo is a chart API client implementing the engine's Provider interface.
type Yahoo struct {
	logger *zap.Logger
	cfg    types.ProviderConfig
	client *http.Client
	cache  Cache
}

// NewYahoo creates a client. A nil cache disables caching.
func NewYahoo(logger *zap.Logger, cfg types.ProviderConfig, cache Cache) *Yahoo {
	if cache == nil {
		cache = nopCache{}
	}
	return &Yahoo{
		logger: logger,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  cache,
	}
}

// NormalizeSymbol maps watch-list symbols to Yahoo tickers. Bare numeric
// symbols are Taiwan listings and get the ".TW" suffix.
func NormalizeSymbol(symbol string) string {
	if n := len(symbol); n >= 4 && n <= 6 {
		numeric := true
		for i := 0; i < n; i++ {
			if symbol[i] < '0' || symbol[i] > '9' {
				numeric = false
				break
			}
		}
		if numeric {
			return symbol + ".TW"
		}
	}
	return symbol
}

// Fetch returns the daily series for one instrument, retrying transient
// failures up to the configured attempt count.
func (y *Yahoo) Fetch(ctx context.Context, inst types.Instrument) (*types.PriceSeries, error) {
	symbol := NormalizeSymbol(inst.Symbol)
	key := fmt.Sprintf("series:%s:%s:%s", symbol, y.cfg.Range, y.cfg.Interval)

	if series, ok := y.cache.Get(ctx, key); ok {
		return series, nil
	}

	var lastErr error
	for attempt := 1; attempt <= y.cfg.MaxAttempts; attempt++ {
		series, err := y.fetchOnce(ctx, symbol)
		if err == nil {
			y.cache.Set(ctx, key, series)
			return series, nil
		}
		lastErr = err
		y.logger.Warn("chart fetch failed",
			zap.String("symbol", symbol),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt < y.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(y.cfg.Backoff * time.Duration(attempt)):
			}
		}
	}
	return nil, fmt.Errorf("fetch %s after %d attempts: %w", symbol, y.cfg.MaxAttempts, lastErr)
}

// chartResponse mirrors the subset of the chart payload we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) fetchOnce(ctx context.Context, symbol string) (*types.PriceSeries, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s",
		y.cfg.BaseURL, url.PathEscape(symbol),
		url.QueryEscape(y.cfg.Range), url.QueryEscape(y.cfg.Interval))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	// The chart endpoint rejects requests without a browser user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart endpoint returned %s", resp.Status)
	}

	var payload chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode chart payload: %w", err)
	}
	if payload.Chart.Error != nil {
		return nil, fmt.Errorf("chart error %s: %s",
			payload.Chart.Error.Code, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 || len(payload.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("empty chart result for %s", symbol)
	}

	result := payload.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	series := &types.PriceSeries{Symbol: symbol}
	for i, ts := range result.Timestamp {
		// Bars with missing quote cells (halts, partial sessions) are dropped.
		if i >= len(quote.Close) || quote.Close[i] == nil ||
			i >= len(quote.High) || quote.High[i] == nil ||
			i >= len(quote.Low) || quote.Low[i] == nil {
			continue
		}
		bar := types.Bar{
			Date:  time.Unix(ts, 0).UTC(),
			High:  decimal.NewFromFloat(*quote.High[i]),
			Low:   decimal.NewFromFloat(*quote.Low[i]),
			Close: decimal.NewFromFloat(*quote.Close[i]),
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			bar.Open = decimal.NewFromFloat(*quote.Open[i])
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = decimal.NewFromFloat(*quote.Volume[i])
		}
		series.Bars = append(series.Bars, bar)
	}

	if err := series.Validate(); err != nil {
		return nil, err
	}
	return series, nil
}
