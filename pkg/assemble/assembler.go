// Package assemble renders the final report document from the template
// and the per-placeholder values, via the external renderer service.
package assemble

import "context"

// Request is one document render job.
type Request struct {
	// TemplateRef identifies the Word template for the renderer.
	TemplateRef string `json:"template_ref"`

	// Values maps placeholder names to their rendered values: scalars,
	// records, tables, or chart specs.
	Values map[string]any `json:"values"`

	// ReportName is the human-facing document title.
	ReportName string `json:"report_name"`

	// ChartEnhancement asks the renderer to draw chart placeholders as
	// images.
	ChartEnhancement bool `json:"use_chart_enhancement"`

	// ContentOptimization asks the renderer for its optional prose
	// polish pass.
	ContentOptimization bool `json:"use_content_optimization"`
}

// Document is a rendered report.
type Document struct {
	// Bytes is the .docx payload.
	Bytes []byte

	// FriendlyName is the download filename suggested by the renderer,
	// or derived from the report name.
	FriendlyName string
}

// Assembler renders documents. The HTTP client is the production
// implementation; tests substitute fakes.
type Assembler interface {
	Assemble(ctx context.Context, req Request) (*Document, error)
}
