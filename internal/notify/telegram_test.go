package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/pkg/types"
)

func testAlerts(n int) []types.AlertEvent {
	out := make([]types.AlertEvent, n)
	for i := range out {
		out[i] = types.AlertEvent{
			Symbol:    fmt.Sprintf("SYM%d", i),
			Rule:      types.RuleKD,
			Message:   fmt.Sprintf("alert %d", i),
			Timestamp: time.Date(2024, 1, 5, 9, 30, 0, 0, time.UTC),
		}
	}
	return out
}

func newTestTelegram(apiBase string) *Telegram {
	tg := NewTelegram(zap.NewNop(), types.TelegramConfig{
		BotToken:     "test-token",
		ChatID:       "12345",
		SendInterval: time.Millisecond,
		Timeout:      5 * time.Second,
	})
	tg.apiBase = apiBase
	return tg
}

func TestNotifySendsHeaderAndAlerts(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottest-token/sendMessage" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.Form.Get("chat_id"); got != "12345" {
			t.Errorf("chat_id = %q", got)
		}
		if got := r.Form.Get("parse_mode"); got != "Markdown" {
			t.Errorf("parse_mode = %q", got)
		}
		if got := r.Form.Get("disable_web_page_preview"); got != "true" {
			t.Errorf("disable_web_page_preview = %q", got)
		}
		mu.Lock()
		texts = append(texts, r.Form.Get("text"))
		mu.Unlock()
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tg := newTestTelegram(srv.URL)
	if err := tg.Notify(context.Background(), testAlerts(3)); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(texts) != 4 {
		t.Fatalf("sent %d messages, want header + 3 alerts", len(texts))
	}
	if texts[0] != "🚨 3 indicator alert(s) at 2024-01-05 09:30" {
		t.Errorf("header = %q", texts[0])
	}
	for i, want := range []string{"alert 0", "alert 1", "alert 2"} {
		if texts[i+1] != want {
			t.Errorf("message %d = %q, want %q", i+1, texts[i+1], want)
		}
	}
}

func TestNotifyContinuesPastFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			fmt.Fprint(w, `{"ok":false,"description":"Bad Request: message is too long"}`)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tg := newTestTelegram(srv.URL)
	err := tg.Notify(context.Background(), testAlerts(3))
	if err == nil {
		t.Fatal("expected first delivery error to surface")
	}
	if calls != 4 {
		t.Errorf("server saw %d calls, want remaining alerts still sent", calls)
	}
}

func TestNotifyEmptyBatchIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty batch")
	}))
	defer srv.Close()

	tg := newTestTelegram(srv.URL)
	if err := tg.Notify(context.Background(), nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestNotifyUnconfiguredDropsSilently(t *testing.T) {
	tg := NewTelegram(zap.NewNop(), types.TelegramConfig{SendInterval: time.Millisecond})
	if tg.Configured() {
		t.Fatal("empty credentials should read as unconfigured")
	}
	if err := tg.Notify(context.Background(), testAlerts(2)); err != nil {
		t.Fatalf("Notify without credentials: %v", err)
	}
}
