// Package api exposes the HTTP surface: task management, execution
// triggering and inspection, artifact download, worker health, and the
// WebSocket subscription endpoint for live progress.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reportforge/reportforge/pkg/config"
	"github.com/reportforge/reportforge/pkg/database"
	"github.com/reportforge/reportforge/pkg/events"
	"github.com/reportforge/reportforge/pkg/queue"
	"github.com/reportforge/reportforge/pkg/storage"
	"github.com/reportforge/reportforge/pkg/store"
)

// ExecutionCanceler cancels in-flight executions on this pod. Implemented
// by the queue worker pool.
type ExecutionCanceler interface {
	CancelExecution(executionID string) bool
	Health() []queue.WorkerHealth
}

// Server holds the API's dependencies.
type Server struct {
	cfg     *config.Config
	db      *sql.DB
	stores  *store.Stores
	catchup *events.CatchupStore
	manager *events.ConnectionManager
	pool    ExecutionCanceler
	storage *storage.Store
	logger  *slog.Logger
}

// NewServer creates the API server.
func NewServer(
	cfg *config.Config,
	db *sql.DB,
	stores *store.Stores,
	catchup *events.CatchupStore,
	manager *events.ConnectionManager,
	pool ExecutionCanceler,
	artifactStore *storage.Store,
) *Server {
	return &Server{
		cfg:     cfg,
		db:      db,
		stores:  stores,
		catchup: catchup,
		manager: manager,
		pool:    pool,
		storage: artifactStore,
		logger:  slog.Default().With("component", "api"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	r.GET("/health", s.healthHandler)
	r.GET("/ws", s.websocketHandler)
	r.GET("/artifacts/*key", s.localArtifactHandler)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/tasks", s.createTaskHandler)
		v1.GET("/tasks", s.listTasksHandler)
		v1.GET("/tasks/:id", s.getTaskHandler)
		v1.PUT("/tasks/:id/active", s.setTaskActiveHandler)
		v1.DELETE("/tasks/:id", s.deleteTaskHandler)
		v1.POST("/tasks/:id/trigger", s.triggerTaskHandler)

		v1.GET("/executions", s.listExecutionsHandler)
		v1.GET("/executions/:id", s.getExecutionHandler)
		v1.GET("/executions/:id/events", s.listExecutionEventsHandler)
		v1.POST("/executions/:id/cancel", s.cancelExecutionHandler)
		v1.GET("/executions/:id/artifact", s.downloadArtifactHandler)
	}
	return r
}

// HTTPServer wraps the router in an http.Server with sane timeouts.
// WebSocket and artifact streaming need a long write window.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders sets standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// healthHandler reports database and worker pool health.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.CheckHealth(ctx, s.db)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": dbHealth,
			"error":    err.Error(),
		})
		return
	}

	resp := gin.H{
		"status":          "healthy",
		"database":        dbHealth,
		"ws_connections":  s.manager.ActiveConnections(),
		"storage_primary": s.storage.PrimaryEnabled(),
	}
	if s.pool != nil {
		resp["workers"] = s.pool.Health()
	}
	c.JSON(http.StatusOK, resp)
}
