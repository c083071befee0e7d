// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/events"
	"github.com/reportforge/reportforge/pkg/store"
)

// Service periodically enforces retention policies:
//   - Deletes terminal executions (and their artifacts rows) past the TTL
//   - Removes persisted progress events past their shorter TTL
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config     *config.RetentionConfig
	executions *store.ExecutionStore
	catchup    *events.CatchupStore

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(
	cfg *config.RetentionConfig,
	executions *store.ExecutionStore,
	catchup *events.CatchupStore,
) *Service {
	return &Service{
		config:     cfg,
		executions: executions,
		catchup:    catchup,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"execution_ttl", s.config.ExecutionTTL,
		"event_ttl", s.config.EventTTL,
		"interval", s.config.Interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.cleanupOldEvents(ctx)
	s.cleanupOldExecutions(ctx)
}

// cleanupOldEvents trims the event log well before its executions
// expire; the execution row keeps the terminal outcome.
func (s *Service) cleanupOldEvents(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.EventTTL)
	count, err := s.catchup.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: event cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old progress events", "count", count)
	}
}

func (s *Service) cleanupOldExecutions(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.ExecutionTTL)
	count, err := s.executions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: execution cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: deleted old executions", "count", count)
	}
}
