package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reportforge/reportforge/pkg/agent/tool"
	"github.com/reportforge/reportforge/pkg/assemble"
	"github.com/reportforge/reportforge/pkg/etl"
	"github.com/reportforge/reportforge/pkg/models"
	"github.com/reportforge/reportforge/pkg/storage"
)

// docxContentType is the MIME type of the uploaded artifact.
const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// phaseETL executes the analyzed placeholders' SQL and shapes the
// results into the render value map. ETL failures demote placeholders
// to failed; the tolerance phase judges the aggregate.
func (p *Pipeline) phaseETL(ctx context.Context, r *run) error {
	r.values = make(map[string]any, len(r.placeholders))

	analyzed := make([]models.Placeholder, 0, len(r.analysis.analyzed))
	for _, ph := range r.placeholders {
		if refreshed, ok := r.analysis.analyzed[ph.Name]; ok {
			analyzed = append(analyzed, *refreshed)
		}
	}
	if len(analyzed) == 0 {
		r.recorder.Record(ctx, models.ExecutionStatusAnalyzing, models.StageETL, percentETL,
			"no validated placeholders to execute", nil)
		return nil
	}

	runner := etl.NewRunner(r.connector, p.cfg.Agent.SQLExecuteTimeout)
	results := runner.Run(ctx, analyzed, r.window)

	for i, res := range results {
		if res.Err != nil {
			p.logger.Warn("etl query failed",
				"placeholder", res.Name, "error", res.Err)
			r.analysis.markFailed(res.Name)
			continue
		}
		r.values[res.Name] = p.renderValue(analyzed[i], res.Data)

		percent := percentAnalysis + (percentETL-percentAnalysis)*(i+1)/len(results)
		r.recorder.Record(ctx, models.ExecutionStatusAnalyzing, models.StageETL, percent,
			fmt.Sprintf("executed %d/%d", i+1, len(results)),
			map[string]any{"placeholder": res.Name, "rows": res.Data.RowCount, "elapsed_ms": res.ElapsedMs})
	}
	return ctx.Err()
}

// renderValue shapes one normalized result for the renderer. Chart
// placeholders carry a derived chart spec next to their data.
func (p *Pipeline) renderValue(ph models.Placeholder, data etl.Normalized) any {
	if ph.SemanticType != models.SemanticTypeChart {
		return data.Value
	}
	spec := tool.DeriveChartSpec(ph.Description, data.Columns)
	return map[string]any{
		"chart_type":     spec.ChartType,
		"title":          spec.Title,
		"category_field": spec.CategoryField,
		"series_fields":  spec.SeriesFields,
		"data":           data.Value,
	}
}

// phaseTolerance gates document production on the failure budget: more
// failed placeholders than allowed, or zero successes on a non-empty
// template, fails the run.
func (p *Pipeline) phaseTolerance(ctx context.Context, r *run) error {
	failed := r.analysis.failedCount()
	succeeded := len(r.values)
	total := len(r.placeholders)

	r.recorder.Record(ctx, models.ExecutionStatusAnalyzing, models.StageTolerance, percentTolerance,
		fmt.Sprintf("%d/%d placeholder(s) produced data", succeeded, total),
		map[string]any{"failed": failed, "allowed": p.cfg.Report.MaxFailedPlaceholders})

	return toleranceVerdict(failed, succeeded, total, p.cfg.Report.MaxFailedPlaceholders)
}

// toleranceVerdict decides whether a run may proceed to assembly. An
// empty template always may; otherwise the failure count must stay
// within the budget and at least one placeholder must have data.
func toleranceVerdict(failed, succeeded, total, allowed int) error {
	if total == 0 {
		return nil
	}
	if failed > allowed {
		return fmt.Errorf("%d placeholder(s) failed, tolerance is %d", failed, allowed)
	}
	if succeeded == 0 {
		return fmt.Errorf("no placeholder produced data")
	}
	return nil
}

// phaseAssembly renders the document, injecting the unavailable-data
// sentinel for in-tolerance failures. One retry on renderer errors.
func (p *Pipeline) phaseAssembly(ctx context.Context, r *run) error {
	for _, ph := range r.placeholders {
		if _, ok := r.values[ph.Name]; !ok {
			r.values[ph.Name] = SentinelUnavailable
		}
	}

	req := assembleRequest(r)
	r.recorder.Record(ctx, models.ExecutionStatusAssembling, models.StageAssembling, percentTolerance,
		"assembling document", map[string]any{"template": r.template.Name})

	retries := p.cfg.Report.AssemblyRetries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, err := p.assembler.Assemble(ctx, req)
		if err == nil {
			r.document = doc
			r.recorder.Record(ctx, models.ExecutionStatusAssembling, models.StageAssembling, percentAssembly,
				"document assembled", map[string]any{"bytes": len(doc.Bytes)})
			return nil
		}
		lastErr = err
		p.logger.Warn("assembly attempt failed",
			"execution_id", r.exec.ID, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("assemble document: %w", lastErr)
}

// phaseUpload stores the document and records the artifact row.
func (p *Pipeline) phaseUpload(ctx context.Context, r *run) error {
	key := storage.ObjectKey(
		p.cfg.Storage.ObjectKeyTemplate,
		r.template.Tenant,
		r.task.Name,
		r.document.FriendlyName,
		time.Now(),
	)

	backend, err := p.storage.Put(ctx, key, r.document.Bytes, docxContentType)
	if err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}

	artifact := &models.ReportArtifact{
		ID:           uuid.NewString(),
		ExecutionID:  r.exec.ID,
		ObjectKey:    key,
		Size:         int64(len(r.document.Bytes)),
		Backend:      backend,
		FriendlyName: r.document.FriendlyName,
	}
	if err := p.stores.Artifacts.Create(ctx, artifact); err != nil {
		return fmt.Errorf("record artifact: %w", err)
	}
	r.artifact = artifact

	r.recorder.Record(ctx, models.ExecutionStatusAssembling, models.StageUpload, percentUpload,
		"artifact uploaded", map[string]any{"key": key, "backend": string(backend)})
	return nil
}

func assembleRequest(r *run) assemble.Request {
	return assemble.Request{
		TemplateRef: r.template.ObjectKey,
		Values:      r.values,
		ReportName:  fmt.Sprintf("%s %s", r.task.Name, r.window.Label),
	}
}
