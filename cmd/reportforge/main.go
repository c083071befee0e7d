// ReportForge server — provides the HTTP API, runs the queue workers and
// cron scheduler, and drives report executions through the pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reportforge/reportforge/pkg/api"
	"github.com/reportforge/reportforge/pkg/assemble"
	"github.com/reportforge/reportforge/pkg/cleanup"
	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/database"
	"github.com/reportforge/reportforge/pkg/datasource"
	"github.com/reportforge/reportforge/pkg/events"
	"github.com/reportforge/reportforge/pkg/llm"
	"github.com/reportforge/reportforge/pkg/notify"
	"github.com/reportforge/reportforge/pkg/pipeline"
	"github.com/reportforge/reportforge/pkg/queue"
	"github.com/reportforge/reportforge/pkg/storage"
	"github.com/reportforge/reportforge/pkg/store"
	"github.com/reportforge/reportforge/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// resolvePodID determines the pod identifier for multi-replica coordination.
// Priority: POD_ID env > HOSTNAME env > "local"
func resolvePodID() string {
	if id := os.Getenv("POD_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	podID := resolvePodID()
	slog.Info("Starting ReportForge",
		"version", version.Full(),
		"pod_id", podID,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("Configuration loaded", "data_sources", cfg.Stats().DataSources)

	// 2. Database (runs embedded migrations)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	stores := store.New(dbClient.DB())

	// 3. One-time startup orphan cleanup for this pod
	if swept, err := stores.Executions.CleanupStartupOrphans(ctx, podID); err != nil {
		slog.Error("Failed to clean up startup orphans", "error", err)
		// Non-fatal — the periodic janitor covers stragglers
	} else if len(swept) > 0 {
		slog.Warn("Failed executions left by previous run", "count", len(swept))
	}

	// 4. Streaming infrastructure
	publisher := events.NewPublisher(dbClient.DB())
	catchup := events.NewCatchupStore(dbClient.DB())
	connManager := events.NewConnectionManager(catchup, cfg.Server.WSWriteTimeout)

	notifyListener := events.NewNotifyListener(dbClient.DSN(), connManager)
	if err := notifyListener.Start(ctx); err != nil {
		slog.Error("Failed to start NOTIFY listener", "error", err)
		os.Exit(1)
	}
	defer notifyListener.Stop(ctx)
	connManager.SetListener(notifyListener)
	slog.Info("Streaming infrastructure initialized")

	// 5. Domain services
	artifactStore, err := storage.NewStore(cfg.Storage, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	assembler, err := assemble.NewHTTPClient(cfg.Assembler)
	if err != nil {
		slog.Error("Failed to initialize assembler client", "error", err)
		os.Exit(1)
	}

	llmClient := llm.NewHTTPClient(*cfg.LLM)
	datasources := datasource.NewManager(cfg.DataSourceRegistry)
	defer datasources.Close()

	var notifier *notify.Service
	if cfg.Slack.Enabled {
		notifier = notify.NewService(notify.ServiceConfig{
			Token:        os.Getenv(cfg.Slack.TokenEnv),
			Channel:      cfg.Slack.Channel,
			DashboardURL: cfg.Server.DashboardURL,
		})
		if notifier == nil {
			slog.Warn("Slack enabled but token or channel missing, notifications disabled")
		}
	}

	executor := pipeline.New(cfg, stores, datasources, llmClient, assembler,
		artifactStore, publisher, notifier, slog.Default())

	// 6. Worker pool and scheduler
	workerPool := queue.NewWorkerPool(podID, stores.Executions, cfg.Queue, executor, publisher)
	workerPool.Start(ctx)

	scheduler := queue.NewTaskScheduler(stores.Tasks, stores.Executions)
	if err := scheduler.Start(ctx); err != nil {
		slog.Error("Failed to start task scheduler", "error", err)
		os.Exit(1)
	}

	// 7. Retention janitor
	retention := cleanup.NewService(cfg.Retention, stores.Executions, catchup)
	retention.Start(ctx)

	// 8. HTTP server
	server := api.NewServer(cfg, dbClient.DB(), stores, catchup, connManager, workerPool, artifactStore)
	httpServer := server.HTTPServer()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("ReportForge started",
		"pod_id", podID,
		"workers", cfg.Queue.WorkerCount)

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: stop enqueueing first, then drain workers,
	// then close the HTTP surface.
	scheduler.Stop()
	retention.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		workerPool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pool stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded — incomplete executions will be orphan-recovered")
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
