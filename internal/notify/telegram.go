// Package notify delivers alert messages through the Telegram Bot API.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/pkg/types"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram posts alert batches to a single chat. Messages are paced by the
// configured send interval to stay inside Telegram's per-chat rate limits.
type Telegram struct {
	logger  *zap.Logger
	cfg     types.TelegramConfig
	client  *http.Client
	apiBase string
}

// NewTelegram creates a notifier.
func NewTelegram(logger *zap.Logger, cfg types.TelegramConfig) *Telegram {
	return &Telegram{
		logger:  logger,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		apiBase: defaultAPIBase,
	}
}

// Configured reports whether a bot token and chat id are present. Without
// them the service runs with delivery disabled.
func (t *Telegram) Configured() bool {
	return t.cfg.BotToken != "" && t.cfg.ChatID != ""
}

// Notify sends one header line plus one message per alert. Delivery failures
// for individual alerts are logged and do not stop the rest of the batch; the
// first error is returned once the batch is done.
func (t *Telegram) Notify(ctx context.Context, alerts []types.AlertEvent) error {
	if len(alerts) == 0 {
		return nil
	}
	if !t.Configured() {
		t.logger.Debug("telegram not configured, dropping alerts", zap.Int("count", len(alerts)))
		return nil
	}

	var firstErr error
	header := fmt.Sprintf("🚨 %d indicator alert(s) at %s",
		len(alerts), alerts[0].Timestamp.Format("2006-01-02 15:04"))
	if err := t.sendMessage(ctx, header); err != nil {
		firstErr = err
		t.logger.Error("header message failed", zap.Error(err))
	}

	for _, alert := range alerts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.cfg.SendInterval):
		}

		if err := t.sendMessage(ctx, alert.Message); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			t.logger.Error("alert message failed",
				zap.String("symbol", alert.Symbol),
				zap.String("rule", string(alert.Rule)),
				zap.Error(err))
			continue
		}
		t.logger.Debug("alert delivered",
			zap.String("symbol", alert.Symbol),
			zap.String("rule", string(alert.Rule)))
	}
	return firstErr
}

// apiResponse is the envelope of every Bot API call.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) sendMessage(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.cfg.BotToken)
	form := url.Values{
		"chat_id":                  {t.cfg.ChatID},
		"text":                     {text},
		"parse_mode":               {"Markdown"},
		"disable_web_page_preview": {"true"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response (%s): %w", resp.Status, err)
	}
	if !body.OK {
		return fmt.Errorf("telegram api: %s", body.Description)
	}
	return nil
}
