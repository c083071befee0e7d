package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/events"
	"github.com/reportforge/reportforge/pkg/models"
	"github.com/reportforge/reportforge/pkg/store"
)

// WorkerPool runs the configured number of workers and the orphan
// janitor. It also keeps the registry of in-flight executions so the
// API can cancel them without a database round-trip.
type WorkerPool struct {
	podID      string
	executions *store.ExecutionStore
	cfg        *config.QueueConfig
	executor   Executor
	publisher  *events.Publisher
	workers    []*Worker

	mu     sync.RWMutex
	active map[string]context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorkerPool creates a pool; Start spins up the workers.
func NewWorkerPool(podID string, executions *store.ExecutionStore, cfg *config.QueueConfig, executor Executor, publisher *events.Publisher) *WorkerPool {
	return &WorkerPool{
		podID:      podID,
		executions: executions,
		cfg:        cfg,
		executor:   executor,
		publisher:  publisher,
		active:     make(map[string]context.CancelFunc),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the workers and the orphan-detection loop.
func (p *WorkerPool) Start(ctx context.Context) {
	count := p.cfg.WorkerCount
	if count < 1 {
		count = 1
	}
	p.workers = make([]*Worker, 0, count)
	for i := 0; i < count; i++ {
		w := NewWorker(fmt.Sprintf("%s-worker-%d", p.podID, i), p.podID,
			p.executions, p.cfg, p.executor, p)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	p.wg.Add(1)
	go p.runOrphanDetection(ctx)

	slog.Info("worker pool started", "pod_id", p.podID, "workers", count)
}

// Stop drains the pool: workers stop claiming, in-flight executions get
// the graceful window, then everything is cancelled.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		for _, w := range p.workers {
			w.Stop()
		}
		close(done)
	}()

	timeout := p.cfg.GracefulShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	select {
	case <-done:
		slog.Info("worker pool drained")
	case <-time.After(timeout):
		slog.Warn("graceful shutdown timeout, cancelling in-flight executions")
		p.cancelAll()
		<-done
	}
	p.wg.Wait()
}

// RegisterExecution records the cancel func for an in-flight execution.
func (p *WorkerPool) RegisterExecution(executionID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[executionID] = cancel
}

// UnregisterExecution removes an execution from the in-flight registry.
func (p *WorkerPool) UnregisterExecution(executionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, executionID)
}

// CancelExecution cancels an in-flight execution on this pod. Returns
// false when the execution is not running here; the caller falls back to
// the database cancel flag, which the pipeline polls between phases.
func (p *WorkerPool) CancelExecution(executionID string) bool {
	p.mu.RLock()
	cancel, ok := p.active[executionID]
	p.mu.RUnlock()
	if ok {
		cancel()
	}
	return ok
}

// ActiveCount returns the number of executions running on this pod.
func (p *WorkerPool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active)
}

// Health returns the health snapshot of every worker.
func (p *WorkerPool) Health() []WorkerHealth {
	healths := make([]WorkerHealth, 0, len(p.workers))
	for _, w := range p.workers {
		healths = append(healths, w.Health())
	}
	return healths
}

func (p *WorkerPool) cancelAll() {
	p.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(p.active))
	for _, cancel := range p.active {
		cancels = append(cancels, cancel)
	}
	p.mu.RUnlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// runOrphanDetection periodically fails executions whose heartbeat went
// stale (crashed pod, netsplit) and broadcasts their terminal status so
// subscribed clients stop waiting.
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	defer p.wg.Done()

	interval := p.cfg.OrphanDetectionInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOrphans(ctx)
		}
	}
}

func (p *WorkerPool) sweepOrphans(ctx context.Context) {
	swept, err := p.executions.SweepOrphans(ctx, p.cfg.OrphanThreshold)
	if err != nil {
		slog.Error("orphan sweep failed", "error", err)
		return
	}
	if len(swept) == 0 {
		return
	}

	slog.Warn("orphaned executions failed", "count", len(swept), "ids", swept)
	for _, id := range swept {
		exec, err := p.executions.Get(ctx, id)
		taskID := ""
		if err == nil {
			taskID = exec.TaskID
		}
		if err := p.publisher.PublishStatusOnly(ctx, events.StatusPayload{
			ExecutionID: id,
			TaskID:      taskID,
			Status:      models.ExecutionStatusFailed,
			Error:       "orphaned: worker heartbeat stale",
			Timestamp:   time.Now().Format(time.RFC3339Nano),
		}); err != nil {
			slog.Warn("failed to broadcast orphan status", "execution_id", id, "error", err)
		}
	}
}
