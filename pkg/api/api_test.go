package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/reportforge/reportforge/pkg/config"
)

// testServer wires only what request-validation paths touch; handlers
// that reach the database are covered by the e2e suite.
func testServer() *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(config.DefaultConfig(), nil, nil, nil, nil, nil, nil)
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestCreateTaskValidation(t *testing.T) {
	s := testServer()

	t.Run("malformed body", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/v1/tasks", "{not json")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing required fields", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/v1/tasks", `{"name":"only a name"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "required")
	})

	t.Run("invalid schedule", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/v1/tasks",
			`{"name":"n","template_id":"t","data_source_id":"ds","schedule":"not cron"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid schedule")
	})

	t.Run("unknown data source", func(t *testing.T) {
		w := doRequest(s, http.MethodPost, "/api/v1/tasks",
			`{"name":"n","template_id":"t","data_source_id":"nope","schedule":"0 7 * * *"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown data source")
	})
}

func TestListExecutionsRejectsUnknownStatus(t *testing.T) {
	s := testServer()

	w := doRequest(s, http.MethodGet, "/api/v1/executions?status=exploded", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid status")
}

func TestSetTaskActiveRequiresBoolean(t *testing.T) {
	s := testServer()

	w := doRequest(s, http.MethodPut, "/api/v1/tasks/task-1/active", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "active")
}

func TestLocalArtifactRequiresKey(t *testing.T) {
	s := testServer()

	w := doRequest(s, http.MethodGet, "/artifacts/", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	s := testServer()

	w := doRequest(s, http.MethodPost, "/api/v1/tasks", "{not json")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
