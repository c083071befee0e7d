package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/reportforge/reportforge/pkg/models"
)

// createTaskHandler handles POST /api/v1/tasks.
func (s *Server) createTaskHandler(c *gin.Context) {
	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Name == "" || req.TemplateID == "" || req.DataSourceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, template_id, and data_source_id are required"})
		return
	}
	if req.Schedule != "" {
		if _, err := cron.ParseStandard(req.Schedule); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid schedule: %v", err)})
			return
		}
	}
	if _, err := s.cfg.GetDataSource(req.DataSourceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown data source: " + req.DataSourceID})
		return
	}

	task, err := s.stores.Tasks.Create(c.Request.Context(), req)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

// listTasksHandler handles GET /api/v1/tasks.
func (s *Server) listTasksHandler(c *gin.Context) {
	filters := models.TaskFilters{Limit: 50}
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
	filters.OwnerID = c.Query("owner_id")
	filters.ActiveOnly = c.Query("active") == "true"

	tasks, err := s.stores.Tasks.List(c.Request.Context(), filters)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// getTaskHandler handles GET /api/v1/tasks/:id.
func (s *Server) getTaskHandler(c *gin.Context) {
	task, err := s.stores.Tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// setTaskActiveHandler handles PUT /api/v1/tasks/:id/active.
func (s *Server) setTaskActiveHandler(c *gin.Context) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "active (boolean) is required"})
		return
	}

	if err := s.stores.Tasks.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": *req.Active})
}

// deleteTaskHandler handles DELETE /api/v1/tasks/:id.
func (s *Server) deleteTaskHandler(c *gin.Context) {
	if err := s.stores.Tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// triggerTaskHandler handles POST /api/v1/tasks/:id/trigger. The caller
// may supply a trigger_id for idempotent retries; otherwise each call
// enqueues a fresh execution.
func (s *Server) triggerTaskHandler(c *gin.Context) {
	taskID := c.Param("id")

	var req struct {
		TriggerID string `json:"trigger_id"`
	}
	_ = c.ShouldBindJSON(&req) // body is optional

	if _, err := s.stores.Tasks.Get(c.Request.Context(), taskID); err != nil {
		abortWithStoreError(c, err)
		return
	}

	trigger := models.TriggerContext{ID: req.TriggerID, Source: "api"}
	if trigger.ID == "" {
		trigger.ID = "api:" + uuid.NewString()
	}

	exec, created, err := s.stores.Executions.Create(c.Request.Context(), taskID, trigger)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	status := http.StatusAccepted
	if !created {
		// Deduplicated against an earlier trigger with the same ID.
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"execution_id": exec.ID,
		"status":       exec.Status,
		"created":      created,
		"channel":      "execution:" + exec.ID,
		"triggered_at": time.Now().UTC().Format(time.RFC3339),
	})
}
