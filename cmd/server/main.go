// Package main runs the watchtower service: scheduled technical-analysis
// scans over a watch-list, deduplicated alert delivery, and an HTTP/WebSocket
// API for the desktop client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/watchtower/internal/api"
	"github.com/atlas-desktop/watchtower/internal/engine"
	"github.com/atlas-desktop/watchtower/internal/notify"
	"github.com/atlas-desktop/watchtower/internal/provider"
	"github.com/atlas-desktop/watchtower/internal/scheduler"
	"github.com/atlas-desktop/watchtower/internal/service"
	"github.com/atlas-desktop/watchtower/internal/state"
	"github.com/atlas-desktop/watchtower/pkg/config"
	"github.com/atlas-desktop/watchtower/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (optional)")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	// Local development drops credentials into .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting watchtower",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Path),
		zap.String("timezone", cfg.Engine.Timezone),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := state.NewSQLiteStore(logger, cfg.Store.Path)
	if err != nil {
		logger.Fatal("Failed to open state store", zap.Error(err))
	}
	defer store.Close()

	var cache provider.Cache
	if cfg.Provider.RedisAddr != "" {
		redisCache := provider.NewRedisCache(logger, cfg.Provider.RedisAddr, cfg.Provider.CacheTTL)
		defer redisCache.Close()
		cache = redisCache
		logger.Info("Using Redis series cache", zap.String("addr", cfg.Provider.RedisAddr))
	} else {
		cache = provider.NewMemoryCache(cfg.Provider.CacheTTL)
	}
	yahoo := provider.NewYahoo(logger, cfg.Provider, cache)

	var recorder *metrics.Recorder
	if cfg.Server.EnableMetrics {
		recorder = metrics.New()
	}

	eng := engine.New(logger, engine.Config{
		Workers:       cfg.Engine.Workers,
		MinBars:       cfg.Engine.MinBars,
		MarkdownLinks: cfg.Engine.MarkdownLinks,
	}, recorder)

	notifier := notify.NewTelegram(logger, cfg.Telegram)
	if !notifier.Configured() {
		logger.Warn("Telegram credentials missing, alert delivery disabled")
	}

	hub := api.NewHub(logger)
	go hub.Run(ctx)

	svc, err := service.New(logger, store, yahoo, eng, notifier, hub, cfg.Engine.Timezone)
	if err != nil {
		logger.Fatal("Failed to initialize service", zap.Error(err))
	}

	sched, err := scheduler.New(logger, cfg.Scheduler, cfg.Engine.Timezone, func(runCtx context.Context, name string) {
		if _, err := svc.RunOnce(runCtx, name); err != nil {
			logger.Error("Scheduled run failed", zap.String("job", name), zap.Error(err))
		}
	})
	if err != nil {
		logger.Fatal("Failed to initialize scheduler", zap.Error(err))
	}

	server := api.NewServer(logger, &cfg.Server, store, hub,
		func(runCtx context.Context, reason string) (*engine.Result, error) {
			return svc.RunOnce(runCtx, reason)
		},
		sched.Status,
	)

	sched.Start()

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
		}
	}()

	logger.Info("Watchtower started",
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.WebSocketPath)),
		zap.Int("jobs", len(cfg.Scheduler.Jobs)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	cancel()
	logger.Info("Watchtower stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
