package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/reportforge/reportforge/pkg/agent"
	"github.com/reportforge/reportforge/pkg/models"
)

// analysisSummary aggregates per-placeholder analysis outcomes.
type analysisSummary struct {
	mu              sync.Mutex
	succeeded       int
	failed          map[string]bool
	fallbackReasons map[string]string
	lastAttempts    map[string]string
	analyzed        map[string]*models.Placeholder // name -> refreshed row
}

func newAnalysisSummary() analysisSummary {
	return analysisSummary{
		failed:          make(map[string]bool),
		fallbackReasons: make(map[string]string),
		lastAttempts:    make(map[string]string),
		analyzed:        make(map[string]*models.Placeholder),
	}
}

func (s *analysisSummary) recordSuccess(ph *models.Placeholder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded++
	s.analyzed[ph.Name] = ph
}

func (s *analysisSummary) recordFailure(name, reason, lastSQL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[name] = true
	if reason != "" {
		s.fallbackReasons[name] = reason
	}
	if lastSQL != "" {
		s.lastAttempts[name] = lastSQL
	}
}

func (s *analysisSummary) markFailed(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.analyzed[name]; ok {
		delete(s.analyzed, name)
		s.succeeded--
	}
	s.failed[name] = true
}

func (s *analysisSummary) failedNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.failed))
	for name := range s.failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *analysisSummary) failedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.failed)
}

// phaseAnalysis derives (or revalidates) SQL for every placeholder,
// bounded by the configured concurrency. Each outcome is persisted on
// the placeholder row immediately, success or not.
func (p *Pipeline) phaseAnalysis(ctx context.Context, r *run) error {
	r.analysis = newAnalysisSummary()
	total := len(r.placeholders)
	if total == 0 {
		r.recorder.Record(ctx, models.ExecutionStatusAnalyzing, models.StageAnalyzing, percentAnalysis,
			"no placeholders to analyze", nil)
		return nil
	}

	r.recorder.Record(ctx, models.ExecutionStatusAnalyzing, models.StageAnalyzing, percentSchema,
		fmt.Sprintf("analyzing %d placeholder(s)", total), nil)

	concurrency := p.cfg.Agent.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	done := 0
	var doneMu sync.Mutex

	for _, ph := range r.placeholders {
		wg.Add(1)
		go func(ph *models.Placeholder) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			p.analyzeOne(ctx, r, ph)

			doneMu.Lock()
			done++
			completed := done
			doneMu.Unlock()

			percent := percentSchema + (percentAnalysis-percentSchema)*completed/total
			r.recorder.Record(ctx, models.ExecutionStatusAnalyzing, models.StageAnalyzing, percent,
				fmt.Sprintf("analyzed %d/%d", completed, total),
				map[string]any{"placeholder": ph.Name})
		}(ph)
	}
	wg.Wait()

	return ctx.Err()
}

// analyzeOne runs one placeholder through the facade and persists the
// outcome. Failures are recorded, never propagated; the tolerance phase
// decides whether the run survives.
func (p *Pipeline) analyzeOne(ctx context.Context, r *run, ph *models.Placeholder) {
	// Cached validated SQL skips derivation entirely via the
	// validate-only path. Cached failed SQL is reattempted unless
	// reanalysis is disabled.
	currentSQL := ""
	if ph.AgentAnalyzed && ph.GeneratedSQL != "" {
		if ph.SQLValidated || p.cfg.Agent.ReanalyzeFailedEnabled() {
			currentSQL = ph.GeneratedSQL
		}
	}

	execCtx := &agent.ExecutionContext{
		Input: &agent.AgentInput{
			UserPrompt:      ph.Description,
			Placeholder:     ph,
			DataSourceID:    r.task.DataSourceID,
			Dialect:         r.connector.Dialect(),
			TimeGranularity: r.granularity,
			CurrentSQL:      currentSQL,
			Context:         &agent.InputContext{Snippet: ph.AgentConfig.ContextSnippet},
		},
		Config:    *p.cfg.Agent,
		LLM:       p.llm,
		Connector: r.connector,
		Schema:    p.schema,
		Registry:  p.registry,
		Pool:      agent.NewResourcePool(),
		Progress:  &recorderSink{run: r},
	}

	out, err := p.facade.Analyze(ctx, execCtx)
	if err != nil {
		p.logger.Error("placeholder analysis aborted",
			"placeholder", ph.Name, "error", err)
		r.analysis.recordFailure(ph.Name, "analysis_error", "")
		return
	}

	update := models.AnalysisUpdate{
		GeneratedSQL:  out.Content,
		SQLValidated:  out.Success && out.Metadata.Validated,
		AgentAnalyzed: out.Content != "",
		Confidence:    out.Metadata.Confidence,
		AgentConfig: models.AgentConfigBlob{
			GenerationMethod: string(out.Metadata.GenerationMethod),
			Iterations:       out.Metadata.Iterations,
			FallbackReason:   out.Metadata.FallbackReason,
			ContextSnippet:   ph.AgentConfig.ContextSnippet,
			LastTestResult: &models.TestResult{
				Success:  out.Success,
				Message:  out.Reason,
				TestedAt: time.Now(),
			},
		},
	}
	if err := p.stores.Placeholders.SaveAnalysis(ctx, ph.ID, update); err != nil {
		p.logger.Error("persisting analysis failed",
			"placeholder", ph.Name, "error", err)
	}

	if !out.Success {
		r.analysis.recordFailure(ph.Name, out.Reason, out.Content)
		return
	}

	refreshed := *ph
	refreshed.GeneratedSQL = out.Content
	refreshed.SQLValidated = true
	refreshed.AgentAnalyzed = true
	refreshed.Confidence = out.Metadata.Confidence
	r.analysis.recordSuccess(&refreshed)
}

// recorderSink adapts agent progress lines onto the execution recorder
// without moving the percent.
type recorderSink struct {
	run *run
}

func (s *recorderSink) Step(message string, details map[string]any) {
	// Percent 0 keeps the high-water mark where it is; only the message
	// and details flow through.
	s.run.recorder.Record(context.Background(), models.ExecutionStatusAnalyzing,
		models.StageAnalyzing, 0, message, details)
}
