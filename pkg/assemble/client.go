package assemble

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/reportforge/reportforge/pkg/config"
)

// maxDocumentSize caps a rendered document read.
const maxDocumentSize = 100 << 20 // 100 MB

// HTTPClient calls the renderer service's POST /render endpoint.
type HTTPClient struct {
	cfg        *config.AssemblerConfig
	httpClient *http.Client
}

// NewHTTPClient creates the client.
func NewHTTPClient(cfg *config.AssemblerConfig) (*HTTPClient, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("assembler base_url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Assemble renders one document. The renderer replies with the .docx
// bytes and a filename in Content-Disposition.
func (c *HTTPClient) Assemble(ctx context.Context, req Request) (*Document, error) {
	req.ChartEnhancement = req.ChartEnhancement || c.cfg.UseChartEnhancement
	req.ContentOptimization = req.ContentOptimization || c.cfg.UseContentOptimization

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("renderer returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("read rendered document: %w", err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("renderer returned an empty document")
	}

	return &Document{
		Bytes:        payload,
		FriendlyName: friendlyName(resp.Header.Get("Content-Disposition"), req.ReportName),
	}, nil
}

// friendlyName extracts the filename from Content-Disposition, falling
// back to the report name.
func friendlyName(disposition, reportName string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	name := strings.TrimSpace(reportName)
	if name == "" {
		name = "report"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".docx") {
		name += ".docx"
	}
	return name
}
