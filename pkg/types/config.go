// Package types provides configuration types for the watchtower service.
package types

import "time"

// Config is the root service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Store     StoreConfig     `mapstructure:"store"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	LogLevel  string          `mapstructure:"log_level"`
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	WebSocketPath string        `mapstructure:"websocket_path"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
}

// EngineConfig tunes the evaluation engine.
type EngineConfig struct {
	Workers       int    `mapstructure:"workers"`        // bounded evaluation parallelism
	MinBars       int    `mapstructure:"min_bars"`       // series shorter than this are DataUnavailable
	Timezone      string `mapstructure:"timezone"`       // calendar day for the dedup gate
	MarkdownLinks bool   `mapstructure:"markdown_links"` // hyperlink instrument ids in alerts
}

// ProviderConfig configures the historical price provider.
type ProviderConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Range       string        `mapstructure:"range"`    // e.g. "6mo"
	Interval    string        `mapstructure:"interval"` // e.g. "1d"
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	RedisAddr   string        `mapstructure:"redis_addr"` // empty disables the Redis cache tier
}

// StoreConfig configures the signal state store.
type StoreConfig struct {
	Path string `mapstructure:"path"` // SQLite database file
}

// TelegramConfig configures alert delivery.
type TelegramConfig struct {
	BotToken     string        `mapstructure:"bot_token"`
	ChatID       string        `mapstructure:"chat_id"`
	SendInterval time.Duration `mapstructure:"send_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig holds the declarative job table.
type SchedulerConfig struct {
	Jobs []JobConfig `mapstructure:"jobs"`
}

// JobConfig describes one recurring evaluation trigger. Either Times (clock
// times on the listed weekdays) or Every is set, not both.
type JobConfig struct {
	Name     string        `mapstructure:"name"`
	Times    []string      `mapstructure:"times"`    // "HH:MM" in Engine.Timezone
	Weekdays []string      `mapstructure:"weekdays"` // "mon".."sun"; empty = every day
	Every    time.Duration `mapstructure:"every"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			WebSocketPath: "/ws",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			EnableMetrics: true,
		},
		Engine: EngineConfig{
			Workers:       5,
			MinBars:       30,
			Timezone:      "Asia/Taipei",
			MarkdownLinks: true,
		},
		Provider: ProviderConfig{
			BaseURL:     "https://query1.finance.yahoo.com",
			Range:       "6mo",
			Interval:    "1d",
			Timeout:     15 * time.Second,
			MaxAttempts: 3,
			Backoff:     2 * time.Second,
			CacheTTL:    20 * time.Minute,
		},
		Store: StoreConfig{
			Path: "watchtower.db",
		},
		Telegram: TelegramConfig{
			SendInterval: 500 * time.Millisecond,
			Timeout:      30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Jobs: []JobConfig{
				{Name: "asia_session", Times: []string{"08:00", "08:30", "09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00", "12:30", "13:00", "13:30"}, Weekdays: []string{"mon", "tue", "wed", "thu", "fri"}},
				{Name: "asia_closing", Times: []string{"13:40"}, Weekdays: []string{"mon", "tue", "wed", "thu", "fri"}},
				{Name: "global_session", Times: []string{"17:00", "23:00"}, Weekdays: []string{"mon", "tue", "wed", "thu", "fri"}},
				{Name: "us_close", Times: []string{"05:00"}, Weekdays: []string{"sat"}},
			},
		},
		LogLevel: "info",
	}
}
