// Package service glues the evaluation pipeline together: watch-list in,
// engine run, state batch applied, alerts delivered.
package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/watchtower/internal/engine"
	"github.com/atlas-desktop/watchtower/internal/state"
	"github.com/atlas-desktop/watchtower/pkg/types"
)

// Notifier delivers a batch of alerts to the outside world.
type Notifier interface {
	Notify(ctx context.Context, alerts []types.AlertEvent) error
}

// Broadcaster streams run output to connected clients.
type Broadcaster interface {
	BroadcastAlert(alert types.AlertEvent)
	BroadcastRunStatus(summary interface{})
}

// Service owns one complete evaluation pipeline. Runs are serialized: the
// dedup gate reads state that the previous run's batch must have written.
type Service struct {
	logger      *zap.Logger
	store       state.Store
	provider    engine.Provider
	engine      *engine.Engine
	notifier    Notifier
	broadcaster Broadcaster
	loc         *time.Location

	runMu sync.Mutex
}

// New creates a service. notifier and broadcaster may be nil.
func New(logger *zap.Logger, store state.Store, provider engine.Provider, eng *engine.Engine, notifier Notifier, broadcaster Broadcaster, timezone string) (*Service, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &Service{
		logger:      logger,
		store:       store,
		provider:    provider,
		engine:      eng,
		notifier:    notifier,
		broadcaster: broadcaster,
		loc:         loc,
	}, nil
}

// RunSummary is the compact run report pushed over the WebSocket stream.
type RunSummary struct {
	RunID     string `json:"runId"`
	Reason    string `json:"reason"`
	Alerts    int    `json:"alerts"`
	Evaluated int    `json:"evaluated"`
	Skipped   int    `json:"skipped"`
	Duration  string `json:"duration"`
}

// RunOnce executes one full evaluation: every instrument, every rule, one
// batched state write, then delivery. Delivery failures are logged but do not
// fail the run; the state batch is already durable at that point.
func (s *Service) RunOnce(ctx context.Context, reason string) (*engine.Result, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	instruments, err := s.store.ListInstruments(ctx)
	if err != nil {
		return nil, err
	}
	if len(instruments) == 0 {
		s.logger.Info("watch-list empty, nothing to evaluate", zap.String("reason", reason))
		return &engine.Result{}, nil
	}

	today := time.Now().In(s.loc)
	result, err := s.engine.Evaluate(ctx, instruments, s.provider, s.store, today)
	if err != nil {
		return nil, err
	}

	if err := s.store.ApplyBatch(ctx, result.Batch); err != nil {
		// Without the batch the next run would re-alert; surface this one.
		return nil, err
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, result.Alerts); err != nil {
			s.logger.Error("alert delivery incomplete",
				zap.String("run_id", result.RunID), zap.Error(err))
		}
	}
	if s.broadcaster != nil {
		for _, alert := range result.Alerts {
			s.broadcaster.BroadcastAlert(alert)
		}
		s.broadcaster.BroadcastRunStatus(RunSummary{
			RunID:     result.RunID,
			Reason:    reason,
			Alerts:    len(result.Alerts),
			Evaluated: result.Evaluated,
			Skipped:   result.Skipped,
			Duration:  result.Duration.String(),
		})
	}
	return result, nil
}
