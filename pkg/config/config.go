// Package config loads service configuration from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/atlas-desktop/watchtower/pkg/types"
)

// Load reads configuration from the given file (optional) with WATCHTOWER_*
// environment variables taking precedence over file values. Missing keys fall
// back to types.DefaultConfig.
func Load(path string) (*types.Config, error) {
	v := viper.New()

	setDefaults(v, types.DefaultConfig())

	v.SetEnvPrefix("WATCHTOWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &types.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *types.Config) {
	v.SetDefault("log_level", d.LogLevel)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.websocket_path", d.Server.WebSocketPath)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.enable_metrics", d.Server.EnableMetrics)

	v.SetDefault("engine.workers", d.Engine.Workers)
	v.SetDefault("engine.min_bars", d.Engine.MinBars)
	v.SetDefault("engine.timezone", d.Engine.Timezone)
	v.SetDefault("engine.markdown_links", d.Engine.MarkdownLinks)

	v.SetDefault("provider.base_url", d.Provider.BaseURL)
	v.SetDefault("provider.range", d.Provider.Range)
	v.SetDefault("provider.interval", d.Provider.Interval)
	v.SetDefault("provider.timeout", d.Provider.Timeout)
	v.SetDefault("provider.max_attempts", d.Provider.MaxAttempts)
	v.SetDefault("provider.backoff", d.Provider.Backoff)
	v.SetDefault("provider.cache_ttl", d.Provider.CacheTTL)
	v.SetDefault("provider.redis_addr", d.Provider.RedisAddr)

	v.SetDefault("store.path", d.Store.Path)

	v.SetDefault("telegram.bot_token", d.Telegram.BotToken)
	v.SetDefault("telegram.chat_id", d.Telegram.ChatID)
	v.SetDefault("telegram.send_interval", d.Telegram.SendInterval)
	v.SetDefault("telegram.timeout", d.Telegram.Timeout)

	v.SetDefault("scheduler.jobs", d.Scheduler.Jobs)
}

func validate(cfg *types.Config) error {
	if cfg.Engine.Workers < 1 {
		return fmt.Errorf("engine.workers must be >= 1, got %d", cfg.Engine.Workers)
	}
	if cfg.Engine.MinBars < 2 {
		return fmt.Errorf("engine.min_bars must be >= 2, got %d", cfg.Engine.MinBars)
	}
	if cfg.Provider.MaxAttempts < 1 {
		return fmt.Errorf("provider.max_attempts must be >= 1, got %d", cfg.Provider.MaxAttempts)
	}
	for _, job := range cfg.Scheduler.Jobs {
		if job.Name == "" {
			return fmt.Errorf("scheduler job missing name")
		}
		if len(job.Times) == 0 && job.Every <= 0 {
			return fmt.Errorf("scheduler job %q needs times or every", job.Name)
		}
		if len(job.Times) > 0 && job.Every > 0 {
			return fmt.Errorf("scheduler job %q sets both times and every", job.Name)
		}
	}
	return nil
}
