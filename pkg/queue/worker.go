package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/store"
)

// Worker is one polling loop: claim a pending execution, heartbeat it,
// run the pipeline, repeat.
type Worker struct {
	id         string
	podID      string
	executions *store.ExecutionStore
	cfg        *config.QueueConfig
	executor   Executor
	registry   executionRegistry
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup

	mu        sync.RWMutex
	status    WorkerStatus
	currentID string
	processed int
	lastSeen  time.Time
}

// NewWorker creates a worker.
func NewWorker(id, podID string, executions *store.ExecutionStore, cfg *config.QueueConfig, executor Executor, registry executionRegistry) *Worker {
	return &Worker{
		id:         id,
		podID:      podID,
		executions: executions,
		cfg:        cfg,
		executor:   executor,
		registry:   registry,
		stopCh:     make(chan struct{}),
		status:     WorkerStatusIdle,
		lastSeen:   time.Now(),
	}
}

// Start begins the polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker and waits for its current execution to
// finish. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the worker's health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                 w.id,
		Status:             w.status,
		CurrentExecutionID: w.currentID,
		Processed:          w.processed,
		LastActivity:       w.lastSeen,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoExecutions) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("execution processing error", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

// pollInterval returns the poll interval with jitter, so replicas don't
// thundering-herd the claim query.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int64N(int64(2*jitter))) - jitter
}

// sleep waits for d or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims and runs one execution. The capacity check is
// best-effort; worker count and jitter bound the overshoot.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	active, err := w.executions.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("checking active executions: %w", err)
	}
	if active >= w.cfg.MaxConcurrentExecutions {
		return ErrAtCapacity
	}

	exec, err := w.executions.ClaimNext(ctx, w.podID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoExecutions
		}
		return fmt.Errorf("claiming execution: %w", err)
	}

	log := slog.With("execution_id", exec.ID, "task_id", exec.TaskID, "worker_id", w.id)
	log.Info("execution claimed")

	w.setStatus(WorkerStatusWorking, exec.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	execCtx, cancelExec := context.WithCancel(ctx)
	defer cancelExec()

	w.registry.RegisterExecution(exec.ID, cancelExec)
	defer w.registry.UnregisterExecution(exec.ID)

	heartbeatCtx, stopHeartbeat := context.WithCancel(execCtx)
	defer stopHeartbeat()
	go w.runHeartbeat(heartbeatCtx, exec.ID)

	// The pipeline persists the terminal state itself; the returned
	// error only shapes the log line.
	if err := w.executor.Run(execCtx, exec); err != nil {
		log.Warn("execution finished with error", "error", err)
	} else {
		log.Info("execution completed")
	}
	stopHeartbeat()

	w.mu.Lock()
	w.processed++
	w.mu.Unlock()
	return nil
}

// runHeartbeat refreshes the claim until the execution context ends.
func (w *Worker) runHeartbeat(ctx context.Context, executionID string) {
	interval := w.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.executions.Heartbeat(ctx, executionID, w.podID); err != nil {
				slog.Warn("heartbeat failed",
					"execution_id", executionID, "worker_id", w.id, "error", err)
			}
		}
	}
}

func (w *Worker) setStatus(status WorkerStatus, executionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentID = executionID
	w.lastSeen = time.Now()
}
