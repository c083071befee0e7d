// Package e2e exercises the full report pipeline against a real
// PostgreSQL database: stores, progress events, the agent fast path, the
// ETL, and artifact storage. The LLM is scripted and the document
// renderer is faked; everything else is the production wiring.
package e2e

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reportforge/reportforge/pkg/agent/tool"
	"github.com/reportforge/reportforge/pkg/assemble"
	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/datasource"
	"github.com/reportforge/reportforge/pkg/events"
	"github.com/reportforge/reportforge/pkg/llm/llmtest"
	"github.com/reportforge/reportforge/pkg/models"
	"github.com/reportforge/reportforge/pkg/pipeline"
	"github.com/reportforge/reportforge/pkg/storage"
	"github.com/reportforge/reportforge/pkg/store"
	"github.com/reportforge/reportforge/test/util"
)

const (
	// testDataSourceID is the data source every test task points at.
	testDataSourceID = "warehouse"

	// testPodID identifies this test process in claim bookkeeping.
	testPodID = "e2e-pod"
)

// salesSQL is a query over the seeded sales table, with the window
// markers the ETL binds at execution time.
const salesSQL = `SELECT region, SUM(amount) AS total FROM sales ` +
	`WHERE sale_date BETWEEN {{start_date}} AND {{end_date}} ` +
	`GROUP BY region ORDER BY total DESC`

// harness wires the production components over an isolated test schema.
type harness struct {
	t         *testing.T
	db        *stdsql.DB
	connStr   string
	cfg       *config.Config
	stores    *store.Stores
	publisher *events.Publisher
	catchup   *events.CatchupStore
	llm       *llmtest.Client
	assembler *fakeAssembler
	storage   *storage.Store
	pipeline  *pipeline.Pipeline
}

func newHarness(t *testing.T) *harness {
	db, connStr := util.SetupTestDatabase(t)

	cfg := config.DefaultConfig()
	cfg.Storage.LocalDir = t.TempDir()
	cfg.Report.WallClock = 2 * time.Minute
	cfg.Agent.Concurrency = 2

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	artifactStore, err := storage.NewStore(cfg.Storage, logger)
	require.NoError(t, err)

	llmClient := &llmtest.Client{}
	assembler := &fakeAssembler{}

	sources := datasource.NewManager(cfg.DataSourceRegistry)
	sources.Put(&schemaConnector{
		SQLConnector: datasource.NewSQLConnector(testDataSourceID, "postgres", 0, db),
		db:           db,
	})

	h := &harness{
		t:         t,
		db:        db,
		connStr:   connStr,
		cfg:       cfg,
		stores:    store.New(db),
		publisher: events.NewPublisher(db),
		catchup:   events.NewCatchupStore(db),
		llm:       llmClient,
		assembler: assembler,
		storage:   artifactStore,
	}
	h.pipeline = pipeline.New(cfg, h.stores, sources, llmClient, assembler,
		artifactStore, h.publisher, nil, logger)
	return h
}

// window returns the reporting window an unscheduled (monthly) task
// resolves to, so seeded rows land inside it.
func (h *harness) window() tool.TimeWindow {
	w, err := tool.ResolveWindow("monthly", time.Now(), 0)
	require.NoError(h.t, err)
	return w
}

// seedSales creates the business table in the test schema and inserts
// rows dated inside the given window.
func (h *harness) seedSales(w tool.TimeWindow) {
	ctx := context.Background()
	_, err := h.db.ExecContext(ctx,
		`CREATE TABLE sales (
		   region text NOT NULL,
		   amount numeric NOT NULL,
		   sale_date date NOT NULL
		 )`)
	require.NoError(h.t, err)

	for i, row := range []struct {
		region string
		amount float64
	}{
		{"north", 1200.50},
		{"south", 900.00},
		{"north", 300.25},
	} {
		_, err := h.db.ExecContext(ctx,
			`INSERT INTO sales (region, amount, sale_date) VALUES ($1, $2, $3::date + $4)`,
			row.region, row.amount, w.StartDate, i)
		require.NoError(h.t, err)
	}
}

func (h *harness) createTemplate(name string) *models.Template {
	tpl := &models.Template{
		Name:      name,
		Tenant:    "default",
		ObjectKey: fmt.Sprintf("templates/default/%s.docx", name),
	}
	tpl.ID = fmt.Sprintf("tpl-%s", name)
	require.NoError(h.t, h.stores.Templates.Create(context.Background(), tpl))
	return tpl
}

// createPlaceholder inserts a placeholder. A non-empty sqlText seeds the
// cached-analysis state, as a previous successful run would have left it.
func (h *harness) createPlaceholder(templateID, name, description, sqlText string) *models.Placeholder {
	ph := &models.Placeholder{
		TemplateID:  templateID,
		Name:        name,
		Description: description,
	}
	if sqlText != "" {
		ph.GeneratedSQL = sqlText
		ph.SQLValidated = true
		ph.AgentAnalyzed = true
		ph.Confidence = 0.9
		ph.AgentConfig = models.AgentConfigBlob{
			GenerationMethod: string(models.GenerationMethodPTAV),
			LastTestResult:   &models.TestResult{Success: true, TestedAt: time.Now()},
		}
	}
	require.NoError(h.t, h.stores.Placeholders.Create(context.Background(), ph))
	return ph
}

func (h *harness) createTask(templateID, name string) *models.Task {
	task, err := h.stores.Tasks.Create(context.Background(), models.CreateTaskRequest{
		OwnerID:      "owner-1",
		Name:         name,
		TemplateID:   templateID,
		DataSourceID: testDataSourceID,
	})
	require.NoError(h.t, err)
	return task
}

// claimExecution triggers and claims one execution, as the worker would.
func (h *harness) claimExecution(taskID string) *models.TaskExecution {
	ctx := context.Background()
	_, created, err := h.stores.Executions.Create(ctx, taskID,
		models.TriggerContext{ID: "manual:" + h.t.Name(), Source: "manual"})
	require.NoError(h.t, err)
	require.True(h.t, created)

	exec, err := h.stores.Executions.ClaimNext(ctx, testPodID)
	require.NoError(h.t, err)
	return exec
}

// reload fetches the current execution row.
func (h *harness) reload(executionID string) *models.TaskExecution {
	exec, err := h.stores.Executions.Get(context.Background(), executionID)
	require.NoError(h.t, err)
	return exec
}

// fakeAssembler is an in-process renderer. It records every request and
// can fail a configured number of leading calls.
type fakeAssembler struct {
	mu       sync.Mutex
	requests []assemble.Request
	failures int
}

var fakeDocxBytes = []byte("PK\x03\x04 fake docx payload")

func (a *fakeAssembler) Assemble(_ context.Context, req assemble.Request) (*assemble.Document, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.failures > 0 {
		a.failures--
		return nil, fmt.Errorf("renderer unavailable")
	}
	return &assemble.Document{
		Bytes:        fakeDocxBytes,
		FriendlyName: req.ReportName + ".docx",
	}, nil
}

func (a *fakeAssembler) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func (a *fakeAssembler) lastRequest() assemble.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return assemble.Request{}
	}
	return a.requests[len(a.requests)-1]
}

// schemaConnector wraps the production SQL connector but introspects the
// test schema instead of public, where the migrated app tables and the
// seeded business tables both live.
type schemaConnector struct {
	*datasource.SQLConnector
	db *stdsql.DB
}

func (c *schemaConnector) ListTables(ctx context.Context) ([]datasource.TableInfo, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []datasource.TableInfo
	for rows.Next() {
		var t datasource.TableInfo
		if err := rows.Scan(&t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *schemaConnector) GetColumns(ctx context.Context, table string) ([]datasource.ColumnInfo, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable
		 FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []datasource.ColumnInfo
	for rows.Next() {
		var col datasource.ColumnInfo
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		out = append(out, col)
	}
	return out, rows.Err()
}

// Close is a no-op; the pool belongs to the test database helper.
func (c *schemaConnector) Close() error { return nil }
