package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reportforge/reportforge/pkg/models"
	"github.com/reportforge/reportforge/pkg/store"
)

// reloadInterval is how often the scheduler re-reads active tasks so
// schedule edits take effect without a restart.
const reloadInterval = time.Minute

// TaskScheduler fires scheduled tasks by enqueueing executions. Every
// replica runs one; the deterministic trigger ID plus the database
// dedup window guarantees each tick enqueues exactly once across the
// fleet.
type TaskScheduler struct {
	tasks      *store.TaskStore
	executions *store.ExecutionStore
	cron       *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID // task ID -> cron entry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTaskScheduler creates a scheduler over the task and execution
// stores.
func NewTaskScheduler(tasks *store.TaskStore, executions *store.ExecutionStore) *TaskScheduler {
	return &TaskScheduler{
		tasks:      tasks,
		executions: executions,
		cron:       cron.New(),
		entries:    make(map[string]cron.EntryID),
		stopCh:     make(chan struct{}),
	}
}

// Start loads active schedules and begins firing them. The reload loop
// keeps registrations in step with task edits.
func (s *TaskScheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()

	s.wg.Add(1)
	go s.runReload(ctx)

	slog.Info("task scheduler started", "scheduled_tasks", s.EntryCount())
	return nil
}

// Stop halts firing and waits for in-flight enqueues to finish.
func (s *TaskScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Reload syncs cron registrations with the active scheduled tasks:
// new schedules are added, edited ones re-registered, deactivated or
// deleted ones removed.
func (s *TaskScheduler) Reload(ctx context.Context) error {
	tasks, err := s.tasks.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("loading active tasks: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Schedule == "" {
			continue
		}
		seen[t.ID] = true
		if err := s.registerLocked(t); err != nil {
			slog.Warn("skipping task with invalid schedule",
				"task_id", t.ID, "schedule", t.Schedule, "error", err)
		}
	}

	for taskID, entryID := range s.entries {
		if !seen[taskID] {
			s.cron.Remove(entryID)
			delete(s.entries, taskID)
			slog.Info("unscheduled task", "task_id", taskID)
		}
	}
	return nil
}

// EntryCount returns the number of registered schedules.
func (s *TaskScheduler) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// registerLocked (re-)registers one task's schedule. Re-registering on
// every reload keeps edits cheap; robfig/cron entry churn is negligible
// at this scale.
func (s *TaskScheduler) registerLocked(t *models.Task) error {
	if entryID, ok := s.entries[t.ID]; ok {
		s.cron.Remove(entryID)
		delete(s.entries, t.ID)
	}

	taskID, taskName := t.ID, t.Name
	entryID, err := s.cron.AddFunc(t.Schedule, func() {
		s.fire(taskID, taskName)
	})
	if err != nil {
		return err
	}
	s.entries[t.ID] = entryID
	return nil
}

// fire enqueues one execution for a schedule tick. The trigger ID is
// derived from the tick time truncated to the minute, so replicas that
// fire for the same tick collapse onto one execution.
func (s *TaskScheduler) fire(taskID, taskName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	trigger := models.TriggerContext{
		ID:     cronTriggerID(taskID, time.Now()),
		Source: "cron",
	}

	exec, created, err := s.executions.Create(ctx, taskID, trigger)
	if err != nil {
		slog.Error("failed to enqueue scheduled execution",
			"task_id", taskID, "task", taskName, "error", err)
		return
	}
	if !created {
		slog.Debug("schedule tick already enqueued",
			"task_id", taskID, "execution_id", exec.ID, "trigger_id", trigger.ID)
		return
	}
	slog.Info("scheduled execution enqueued",
		"task_id", taskID, "task", taskName, "execution_id", exec.ID)
}

// cronTriggerID builds the deterministic idempotency key for one
// schedule tick.
func cronTriggerID(taskID string, at time.Time) string {
	return fmt.Sprintf("cron:%s:%s", taskID, at.UTC().Truncate(time.Minute).Format(time.RFC3339))
}

// runReload refreshes registrations until stopped.
func (s *TaskScheduler) runReload(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				slog.Warn("schedule reload failed", "error", err)
			}
		}
	}
}
