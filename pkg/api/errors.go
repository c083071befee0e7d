package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reportforge/reportforge/pkg/store"
)

// abortWithStoreError maps store-layer errors to HTTP error responses.
func abortWithStoreError(c *gin.Context, err error) {
	var validErr *store.ValidationError
	if errors.As(err, &validErr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validErr.Error()})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "resource not found"})
		return
	}
	if errors.Is(err, store.ErrTerminal) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "execution is already terminal"})
		return
	}
	if errors.Is(err, store.ErrHasActiveExecutions) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "task has active executions"})
		return
	}

	slog.Error("Unexpected store error", "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
