// Package pipeline drives one report execution end to end: load the
// task, warm the schema, analyze placeholders, run the ETL, check the
// failure tolerance, assemble the document, upload it, and finalize the
// execution row. Progress is recorded after every phase with a
// monotonically increasing percent.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/agent/controller"
	"github.com/reportforge/reportforge/pkg/agent/planner"
	"github.com/reportforge/reportforge/pkg/agent/tool"
	"github.com/reportforge/reportforge/pkg/assemble"
	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/datasource"
	"github.com/reportforge/reportforge/pkg/events"
	"github.com/reportforge/reportforge/pkg/llm"
	"github.com/reportforge/reportforge/pkg/models"
	"github.com/reportforge/reportforge/pkg/notify"
	"github.com/reportforge/reportforge/pkg/schemacache"
	"github.com/reportforge/reportforge/pkg/storage"
	"github.com/reportforge/reportforge/pkg/store"
)

// Sentinel injected for placeholders whose data could not be produced
// when the run is still within tolerance.
const SentinelUnavailable = "【placeholder: data unavailable】"

// Phase percent milestones. Progress inside a phase interpolates within
// its range; the recorder enforces the high-water mark.
const (
	percentInit      = 5
	percentSchema    = 15
	percentAnalysis  = 65
	percentETL       = 85
	percentTolerance = 85
	percentAssembly  = 92
	percentUpload    = 95
	percentDone      = 100
)

// ErrCancelled marks an execution stopped by a cancel request.
var ErrCancelled = errors.New("execution cancelled")

// Pipeline executes claimed report runs.
type Pipeline struct {
	cfg         *config.Config
	stores      *store.Stores
	datasources *datasource.Manager
	schema      *schemacache.Cache
	registry    *agent.Registry
	llm         llm.Client
	facade      *controller.Facade
	assembler   assemble.Assembler
	storage     *storage.Store
	publisher   *events.Publisher
	notifier    *notify.Service // nil-safe, may be nil
	logger      *slog.Logger
}

// New wires the pipeline.
func New(
	cfg *config.Config,
	stores *store.Stores,
	datasources *datasource.Manager,
	llmClient llm.Client,
	assembler assemble.Assembler,
	artifactStore *storage.Store,
	publisher *events.Publisher,
	notifier *notify.Service,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	loop := controller.NewLoop(planner.New(llmClient, cfg.Agent.ObservationWindow))
	return &Pipeline{
		cfg:         cfg,
		stores:      stores,
		datasources: datasources,
		schema:      schemacache.New(cfg.Agent.SchemaCacheTTL),
		registry:    tool.NewRegistry(),
		llm:         llmClient,
		facade:      controller.NewFacade(loop),
		assembler:   assembler,
		storage:     artifactStore,
		publisher:   publisher,
		notifier:    notifier,
		logger:      logger,
	}
}

// run carries the mutable state of one execution through the phases.
type run struct {
	exec         *models.TaskExecution
	task         *models.Task
	template     *models.Template
	placeholders []*models.Placeholder
	connector    datasource.Connector
	window       tool.TimeWindow
	granularity  string
	recorder     *events.ProgressRecorder

	analysis analysisSummary
	values   map[string]any
	document *assemble.Document
	artifact *models.ReportArtifact
}

// Run executes one claimed execution to a terminal state. The returned
// error reflects the run's outcome; the terminal status has already
// been persisted either way.
func (p *Pipeline) Run(ctx context.Context, exec *models.TaskExecution) error {
	recorder := events.NewProgressRecorder(exec.ID, exec.TaskID, p.stores.Executions, p.publisher)
	r := &run{exec: exec, recorder: recorder}

	budget := p.cfg.Report.WallClock
	if budget <= 0 {
		budget = 10 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	err := p.phases(runCtx, r)
	switch {
	case err == nil:
		recorder.RecordTerminal(ctx, models.ExecutionStatusCompleted, p.result(r), "")
		p.logger.Info("execution completed",
			"execution_id", exec.ID, "task_id", exec.TaskID,
			"artifact_key", r.artifact.ObjectKey, "backend", r.artifact.Backend)
		p.notifyTerminal(r, models.ExecutionStatusCompleted, "")
		return nil

	case errors.Is(err, ErrCancelled):
		recorder.RecordTerminal(ctx, models.ExecutionStatusCancelled, p.result(r), "cancelled")
		p.logger.Info("execution cancelled", "execution_id", exec.ID)
		p.notifyTerminal(r, models.ExecutionStatusCancelled, "cancelled")
		return err

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		recorder.RecordTerminal(ctx, models.ExecutionStatusFailed, p.result(r), "timeout")
		p.logger.Warn("execution exceeded wall clock budget",
			"execution_id", exec.ID, "budget", budget)
		p.notifyTerminal(r, models.ExecutionStatusFailed, "timeout")
		return fmt.Errorf("wall clock budget exceeded: %w", err)

	default:
		recorder.RecordTerminal(ctx, models.ExecutionStatusFailed, p.result(r), err.Error())
		p.logger.Error("execution failed", "execution_id", exec.ID, "error", err)
		p.notifyTerminal(r, models.ExecutionStatusFailed, err.Error())
		return err
	}
}

// notifyTerminal sends the Slack terminal notification. Best-effort, on
// a fresh context so a cancelled run still announces its outcome.
func (p *Pipeline) notifyTerminal(r *run, status models.ExecutionStatus, errText string) {
	if p.notifier == nil || r.task == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	input := notify.ExecutionFinishedInput{
		ExecutionID:  r.exec.ID,
		TaskName:     r.task.Name,
		WindowLabel:  r.window.Label,
		Status:       string(status),
		ErrorMessage: errText,
		Recipients:   r.task.Recipients,
	}
	if r.artifact != nil {
		url, err := p.storage.PresignedURL(ctx, r.artifact.ObjectKey, r.artifact.Backend)
		if err != nil {
			p.logger.Warn("presigning artifact for notification failed",
				"execution_id", r.exec.ID, "error", err)
		} else {
			input.DownloadURL = url
		}
	}
	p.notifier.NotifyExecutionFinished(ctx, input)
}

func (p *Pipeline) phases(ctx context.Context, r *run) error {
	type phase struct {
		name string
		fn   func(context.Context, *run) error
	}
	for _, ph := range []phase{
		{"init", p.phaseInit},
		{"schema", p.phaseSchema},
		{"analysis", p.phaseAnalysis},
		{"etl", p.phaseETL},
		{"tolerance", p.phaseTolerance},
		{"assembly", p.phaseAssembly},
		{"upload", p.phaseUpload},
	} {
		if err := p.checkCancel(ctx, r); err != nil {
			return err
		}
		if err := ph.fn(ctx, r); err != nil {
			return fmt.Errorf("%s: %w", ph.name, err)
		}
	}
	return nil
}

// checkCancel observes cancel requests at phase boundaries.
func (p *Pipeline) checkCancel(ctx context.Context, r *run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	requested, err := p.stores.Executions.CancelRequested(ctx, r.exec.ID)
	if err != nil {
		p.logger.Warn("cancel check failed", "execution_id", r.exec.ID, "error", err)
		return nil
	}
	if requested {
		return ErrCancelled
	}
	return nil
}

// result builds the terminal result blob from whatever the run got to.
func (p *Pipeline) result(r *run) *models.ExecutionResultBlob {
	blob := &models.ExecutionResultBlob{
		PlaceholderCount:   len(r.placeholders),
		SucceededCount:     r.analysis.succeeded,
		FailedPlaceholders: r.analysis.failedNames(),
		FallbackReasons:    r.analysis.fallbackReasons,
		LastSQLAttempts:    r.analysis.lastAttempts,
	}
	if r.artifact != nil {
		blob.ArtifactKey = r.artifact.ObjectKey
		blob.ArtifactBackend = r.artifact.Backend
	}
	return blob
}
