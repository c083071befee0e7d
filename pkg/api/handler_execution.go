package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/reportforge/reportforge/pkg/models"
	"github.com/reportforge/reportforge/pkg/storage"
	"github.com/reportforge/reportforge/pkg/store"
)

const docxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// listExecutionsHandler handles GET /api/v1/executions.
func (s *Server) listExecutionsHandler(c *gin.Context) {
	filters := models.ExecutionFilters{Limit: 50}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			filters.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filters.Offset = n
		}
	}
	filters.TaskID = c.Query("task_id")
	if v := c.Query("status"); v != "" {
		status := models.ExecutionStatus(v)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + v})
			return
		}
		filters.Status = status
	}

	execs, err := s.stores.Executions.List(c.Request.Context(), filters)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": execs})
}

// getExecutionHandler handles GET /api/v1/executions/:id.
func (s *Server) getExecutionHandler(c *gin.Context) {
	exec, err := s.stores.Executions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, exec)
}

// listExecutionEventsHandler handles GET /api/v1/executions/:id/events —
// the persisted progress history, ordered by seq.
func (s *Server) listExecutionEventsHandler(c *gin.Context) {
	executionID := c.Param("id")
	if _, err := s.stores.Executions.Get(c.Request.Context(), executionID); err != nil {
		abortWithStoreError(c, err)
		return
	}

	evts, err := s.catchup.ListEvents(c.Request.Context(), executionID)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"execution_id": executionID, "events": evts})
}

// cancelExecutionHandler handles POST /api/v1/executions/:id/cancel.
// Sets the database cancel flag, then pokes the local worker pool; a
// run on another pod observes the flag at its next phase boundary.
func (s *Server) cancelExecutionHandler(c *gin.Context) {
	executionID := c.Param("id")

	if err := s.stores.Executions.RequestCancel(c.Request.Context(), executionID); err != nil {
		abortWithStoreError(c, err)
		return
	}

	local := false
	if s.pool != nil {
		local = s.pool.CancelExecution(executionID)
	}

	c.JSON(http.StatusOK, gin.H{
		"execution_id":      executionID,
		"message":           "cancellation requested",
		"cancelled_locally": local,
	})
}

// downloadArtifactHandler handles GET /api/v1/executions/:id/artifact.
// Primary-held artifacts redirect to a presigned URL; fallback-held
// artifacts stream through this server.
func (s *Server) downloadArtifactHandler(c *gin.Context) {
	artifact, err := s.stores.Artifacts.GetByExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	if artifact.Backend == models.StorageBackendPrimary {
		url, err := s.storage.PresignedURL(c.Request.Context(), artifact.ObjectKey, artifact.Backend)
		if err == nil {
			c.Redirect(http.StatusFound, url)
			return
		}
		s.logger.Warn("presign failed, streaming instead",
			"execution_id", c.Param("id"), "error", err)
	}

	s.streamArtifact(c, artifact.ObjectKey, artifact.Backend, artifact.FriendlyName)
}

// localArtifactHandler handles GET /artifacts/*key — the URL shape the
// fallback backend presigns to.
func (s *Server) localArtifactHandler(c *gin.Context) {
	key := c.Param("key")
	if len(key) > 0 && key[0] == '/' {
		key = key[1:]
	}
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "artifact key is required"})
		return
	}
	s.streamArtifact(c, key, models.StorageBackendFallback, "")
}

func (s *Server) streamArtifact(c *gin.Context, key string, backend models.StorageBackend, friendlyName string) {
	reader, _, err := s.storage.Get(c.Request.Context(), key, backend)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			abortWithStoreError(c, store.ErrNotFound)
			return
		}
		abortWithStoreError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Type", docxContentType)
	if friendlyName != "" {
		c.Header("Content-Disposition", `attachment; filename="`+friendlyName+`"`)
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		s.logger.Warn("artifact stream interrupted", "key", key, "error", err)
	}
}
