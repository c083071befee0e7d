package assemble

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportforge/pkg/config"
)

func TestAssembleRoundTrip(t *testing.T) {
	var received Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/render", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Disposition", `attachment; filename="monthly-sales.docx"`)
		w.Write([]byte("PK-docx-bytes"))
	}))
	defer server.Close()

	client, err := NewHTTPClient(&config.AssemblerConfig{
		BaseURL:             server.URL,
		Timeout:             5 * time.Second,
		UseChartEnhancement: true,
	})
	require.NoError(t, err)

	doc, err := client.Assemble(context.Background(), Request{
		TemplateRef: "tpl-1",
		ReportName:  "Monthly Sales",
		Values:      map[string]any{"total": 42.0},
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("PK-docx-bytes"), doc.Bytes)
	assert.Equal(t, "monthly-sales.docx", doc.FriendlyName)
	assert.True(t, received.ChartEnhancement, "config default propagates")
	assert.False(t, received.ContentOptimization)
	assert.Equal(t, "tpl-1", received.TemplateRef)
}

func TestAssembleRendererError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "template not found", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client, err := NewHTTPClient(&config.AssemblerConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Assemble(context.Background(), Request{TemplateRef: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "template not found")
}

func TestAssembleEmptyDocument(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewHTTPClient(&config.AssemblerConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Assemble(context.Background(), Request{})
	assert.Error(t, err)
}

func TestFriendlyName(t *testing.T) {
	assert.Equal(t, "x.docx", friendlyName(`attachment; filename="x.docx"`, "ignored"))
	assert.Equal(t, "Monthly Sales.docx", friendlyName("", "Monthly Sales"))
	assert.Equal(t, "report.docx", friendlyName("", ""))
	assert.Equal(t, "done.docx", friendlyName("", "done.docx"))
}
