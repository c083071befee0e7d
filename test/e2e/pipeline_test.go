package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportforge/pkg/agent/tool"
	"github.com/reportforge/reportforge/pkg/llm"
	"github.com/reportforge/reportforge/pkg/models"
	"github.com/reportforge/reportforge/pkg/pipeline"
	"github.com/reportforge/reportforge/pkg/store"
)

func TestPipelineCompletesWithCachedSQL(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedSales(h.window())
	tpl := h.createTemplate("monthly-sales")
	h.createPlaceholder(tpl.ID, "regional_revenue", "Total revenue by region", salesSQL)
	task := h.createTask(tpl.ID, "Monthly Sales")
	exec := h.claimExecution(task.ID)

	require.NoError(t, h.pipeline.Run(ctx, exec))

	// Cached validated SQL rides the validate-only fast path; the LLM is
	// never consulted.
	assert.Zero(t, h.llm.CallCount())

	row := h.reload(exec.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, row.Status)
	assert.Equal(t, 100, row.Progress)
	require.NotNil(t, row.FinishedAt)
	require.NotNil(t, row.Result)
	assert.Equal(t, 1, row.Result.PlaceholderCount)
	assert.Equal(t, 1, row.Result.SucceededCount)
	assert.Empty(t, row.Result.FailedPlaceholders)
	assert.NotEmpty(t, row.Result.ArtifactKey)
	assert.Equal(t, models.StorageBackendFallback, row.Result.ArtifactBackend)

	// The artifact row points at a real file under the local backend.
	artifact, err := h.stores.Artifacts.GetByExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, row.Result.ArtifactKey, artifact.ObjectKey)
	assert.Equal(t, int64(len(fakeDocxBytes)), artifact.Size)
	data, err := os.ReadFile(filepath.Join(h.cfg.Storage.LocalDir, artifact.ObjectKey))
	require.NoError(t, err)
	assert.Equal(t, fakeDocxBytes, data)

	// The renderer saw real data, not the unavailable sentinel.
	req := h.assembler.lastRequest()
	assert.Equal(t, tpl.ObjectKey, req.TemplateRef)
	assert.NotEqual(t, pipeline.SentinelUnavailable, req.Values["regional_revenue"])

	assertEventStream(t, h, exec.ID, models.ExecutionStatusCompleted)
}

func TestPipelineDerivesSQLWithScriptedPlanner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedSales(h.window())
	tpl := h.createTemplate("derived-sales")
	ph := h.createPlaceholder(tpl.ID, "regional_revenue", "Total revenue by region", "")
	task := h.createTask(tpl.ID, "Derived Sales")
	exec := h.claimExecution(task.ID)

	// One plan: validate the draft. The static validator passes it against
	// the introspected schema and the loop exits on the first iteration.
	h.llm.Responses = []*llm.Response{{
		Content: fmt.Sprintf(
			`{"reasoning":"single validated draft","confidence":0.85,"steps":[{"tool":%q,"input":{"sql":%q}}]}`,
			tool.NameValidate, salesSQL),
		Model: "test-model",
	}}

	require.NoError(t, h.pipeline.Run(ctx, exec))
	assert.Equal(t, 1, h.llm.CallCount())

	row := h.reload(exec.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, row.Status)

	// The derived SQL is cached on the placeholder row for later runs.
	refreshed, err := h.stores.Placeholders.Get(ctx, ph.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.AgentAnalyzed)
	assert.True(t, refreshed.SQLValidated)
	assert.Equal(t, salesSQL, refreshed.GeneratedSQL)
	assert.Equal(t, string(models.GenerationMethodPTAV), refreshed.AgentConfig.GenerationMethod)
	assert.Equal(t, 1, refreshed.AgentConfig.Iterations)
	assert.InDelta(t, 0.85, refreshed.Confidence, 0.001)
}

func TestPipelineInjectsSentinelWithinTolerance(t *testing.T) {
	h := newHarness(t)
	h.cfg.Report.MaxFailedPlaceholders = 1
	ctx := context.Background()

	h.seedSales(h.window())
	tpl := h.createTemplate("tolerant-sales")
	h.createPlaceholder(tpl.ID, "regional_revenue", "Total revenue by region", salesSQL)
	// Cached SQL against a table that no longer exists. The static check
	// rejects it, the unscripted planner cannot produce a plan, and the
	// placeholder ends up failed.
	h.createPlaceholder(tpl.ID, "legacy_metric", "Metric from a dropped table",
		"SELECT amount FROM legacy_orders WHERE sale_date BETWEEN {{start_date}} AND {{end_date}}")
	task := h.createTask(tpl.ID, "Tolerant Sales")
	exec := h.claimExecution(task.ID)

	require.NoError(t, h.pipeline.Run(ctx, exec))

	row := h.reload(exec.ID)
	assert.Equal(t, models.ExecutionStatusCompleted, row.Status)
	require.NotNil(t, row.Result)
	assert.Equal(t, []string{"legacy_metric"}, row.Result.FailedPlaceholders)
	assert.Equal(t, 1, row.Result.SucceededCount)
	assert.NotEmpty(t, row.Result.FallbackReasons["legacy_metric"])

	req := h.assembler.lastRequest()
	assert.Equal(t, pipeline.SentinelUnavailable, req.Values["legacy_metric"])
	assert.NotEqual(t, pipeline.SentinelUnavailable, req.Values["regional_revenue"])
}

func TestPipelineFailsBeyondTolerance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedSales(h.window())
	tpl := h.createTemplate("strict-sales")
	h.createPlaceholder(tpl.ID, "regional_revenue", "Total revenue by region", salesSQL)
	h.createPlaceholder(tpl.ID, "legacy_metric", "Metric from a dropped table",
		"SELECT amount FROM legacy_orders WHERE sale_date BETWEEN {{start_date}} AND {{end_date}}")
	task := h.createTask(tpl.ID, "Strict Sales")
	exec := h.claimExecution(task.ID)

	// Default tolerance is zero failed placeholders.
	err := h.pipeline.Run(ctx, exec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tolerance")

	row := h.reload(exec.ID)
	assert.Equal(t, models.ExecutionStatusFailed, row.Status)
	assert.Contains(t, row.Error, "tolerance")

	// No document was rendered or stored.
	assert.Zero(t, h.assembler.calls())
	_, err = h.stores.Artifacts.GetByExecution(ctx, exec.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPipelineRetriesAssembly(t *testing.T) {
	h := newHarness(t)
	h.assembler.failures = 1
	ctx := context.Background()

	h.seedSales(h.window())
	tpl := h.createTemplate("retry-sales")
	h.createPlaceholder(tpl.ID, "regional_revenue", "Total revenue by region", salesSQL)
	task := h.createTask(tpl.ID, "Retry Sales")
	exec := h.claimExecution(task.ID)

	require.NoError(t, h.pipeline.Run(ctx, exec))
	assert.Equal(t, 2, h.assembler.calls())
	assert.Equal(t, models.ExecutionStatusCompleted, h.reload(exec.ID).Status)
}

func TestPipelineObservesCancelRequest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tpl := h.createTemplate("cancelled-sales")
	h.createPlaceholder(tpl.ID, "regional_revenue", "Total revenue by region", salesSQL)
	task := h.createTask(tpl.ID, "Cancelled Sales")
	exec := h.claimExecution(task.ID)

	// Cancel after the claim: the row is already running, so the request
	// is a flag the pipeline observes at its first phase boundary.
	require.NoError(t, h.stores.Executions.RequestCancel(ctx, exec.ID))

	err := h.pipeline.Run(ctx, exec)
	require.ErrorIs(t, err, pipeline.ErrCancelled)

	row := h.reload(exec.ID)
	assert.Equal(t, models.ExecutionStatusCancelled, row.Status)
	require.NotNil(t, row.FinishedAt)

	assertEventStream(t, h, exec.ID, models.ExecutionStatusCancelled)
}

func TestPipelineFailsOnWallClockBudget(t *testing.T) {
	h := newHarness(t)
	h.cfg.Report.WallClock = time.Nanosecond
	ctx := context.Background()

	tpl := h.createTemplate("slow-sales")
	h.createPlaceholder(tpl.ID, "regional_revenue", "Total revenue by region", salesSQL)
	task := h.createTask(tpl.ID, "Slow Sales")
	exec := h.claimExecution(task.ID)

	err := h.pipeline.Run(ctx, exec)
	require.Error(t, err)
	require.False(t, errors.Is(err, pipeline.ErrCancelled))

	row := h.reload(exec.ID)
	assert.Equal(t, models.ExecutionStatusFailed, row.Status)
	assert.Equal(t, "timeout", row.Error)
}

// assertEventStream checks the persisted progress history: sequence
// numbers dense from 1, percent and stage order non-decreasing, and a
// final finalize event matching the terminal status.
func assertEventStream(t *testing.T, h *harness, executionID string, terminal models.ExecutionStatus) {
	t.Helper()

	evts, err := h.catchup.ListEvents(context.Background(), executionID)
	require.NoError(t, err)
	require.NotEmpty(t, evts)

	lastPercent := 0
	lastStage := 0
	for i, e := range evts {
		assert.Equal(t, i+1, e.Seq, "sequence numbers must be dense from 1")
		assert.GreaterOrEqual(t, e.Percent, lastPercent, "percent must never decrease")
		lastPercent = e.Percent

		order, ok := models.StageOrder[e.Stage]
		require.True(t, ok, "unknown stage %q", e.Stage)
		assert.GreaterOrEqual(t, order, lastStage, "stages must respect pipeline order")
		lastStage = order
	}

	final := evts[len(evts)-1]
	assert.Equal(t, models.StageFinalize, final.Stage)
	assert.Equal(t, "execution "+string(terminal), final.Message)
	if terminal == models.ExecutionStatusCompleted {
		assert.Equal(t, 100, final.Percent)
	}
}
