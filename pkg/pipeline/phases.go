package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/reportforge/reportforge/pkg/agent/tool"
	"github.com/reportforge/reportforge/pkg/models"
	"github.com/reportforge/reportforge/pkg/notify"
)

// phaseInit loads the task, template, and placeholders, and opens the
// data source connector.
func (p *Pipeline) phaseInit(ctx context.Context, r *run) error {
	r.recorder.Record(ctx, models.ExecutionStatusScanning, models.StageInit, 0, "starting execution", nil)

	task, err := p.stores.Tasks.Get(ctx, r.exec.TaskID)
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}
	r.task = task

	template, err := p.stores.Templates.Get(ctx, task.TemplateID)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}
	r.template = template

	placeholders, err := p.stores.Placeholders.ListByTemplate(ctx, task.TemplateID)
	if err != nil {
		return fmt.Errorf("load placeholders: %w", err)
	}
	r.placeholders = placeholders

	connector, err := p.datasources.Get(ctx, task.DataSourceID)
	if err != nil {
		return fmt.Errorf("open data source %s: %w", task.DataSourceID, err)
	}
	r.connector = connector

	r.granularity = granularityFromSchedule(task.Schedule)
	window, err := tool.ResolveWindow(r.granularity, time.Now(), 0)
	if err != nil {
		return fmt.Errorf("resolve window: %w", err)
	}
	r.window = window

	r.recorder.Record(ctx, models.ExecutionStatusScanning, models.StageInit, percentInit,
		fmt.Sprintf("loaded %d placeholder(s)", len(placeholders)),
		map[string]any{
			"task":        task.Name,
			"template":    template.Name,
			"window":      window.Label,
			"granularity": r.granularity,
		})

	p.notifier.NotifyExecutionStarted(ctx, notify.ExecutionStartedInput{
		ExecutionID: r.exec.ID,
		TaskName:    task.Name,
		WindowLabel: window.Label,
		Recipients:  task.Recipients,
	})
	return nil
}

// phaseSchema warms the schema snapshot for the data source so every
// placeholder analysis shares one introspection.
func (p *Pipeline) phaseSchema(ctx context.Context, r *run) error {
	snap, err := p.schema.Get(ctx, r.connector, false)
	if err != nil {
		return fmt.Errorf("discover schema: %w", err)
	}

	r.recorder.Record(ctx, models.ExecutionStatusScanning, models.StageSchema, percentSchema,
		fmt.Sprintf("discovered %d table(s)", len(snap.Tables)),
		map[string]any{"data_source": r.connector.ID(), "stale": snap.Stale})
	return nil
}

// granularityFromSchedule infers the reporting granularity from the
// task's cron expression: a fixed day-of-month means monthly, a fixed
// day-of-week means weekly, otherwise daily. Unscheduled (manual) tasks
// default to monthly.
func granularityFromSchedule(schedule string) string {
	fields := strings.Fields(schedule)
	if len(fields) < 5 {
		return "monthly"
	}
	// minute hour dom month dow
	dom, dow := fields[2], fields[4]
	switch {
	case dom != "*" && dom != "?":
		return "monthly"
	case dow != "*" && dow != "?":
		return "weekly"
	default:
		return "daily"
	}
}
