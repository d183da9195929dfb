package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"campus_hub/hub/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditRecord struct {
	Level       string            `json:"level"`
	UserId      string            `json:"user_id"`
	Role        string            `json:"role"`
	ClientIp    string            `json:"client_ip"`
	Method      string            `json:"method"`
	Url         string            `json:"url"`
	Status      int               `json:"status"`
	Resources   map[string]string `json:"resources"`
	QueryParams map[string]string `json:"query_params"`
}

func auditedRouter(audit *AuditLogger, user schema.User) chi.Router {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserRequestContextKey, user)))
		})
	})
	r.Use(audit.Middleware)

	projects := chi.NewRouter()
	projects.Route("/{project_id}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {})
		r.Patch("/tasks/{task_id}/assign", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	})
	r.Mount("/projects", projects)

	return r
}

func lastAuditRecord(t *testing.T, buf *bytes.Buffer) auditRecord {
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var record auditRecord
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &record))
	return record
}

func TestAuditLoggerRecordsHubResources(t *testing.T) {
	buf := new(bytes.Buffer)
	audit := NewAuditLogger(buf)
	user := schema.User{Id: uuid.New(), Email: "lead@campus.edu", Role: schema.StudentRole}
	router := auditedRouter(&audit, user)

	projectId, taskId := uuid.NewString(), uuid.NewString()

	req := httptest.NewRequest("PATCH", "/projects/"+projectId+"/tasks/"+taskId+"/assign", nil)
	req.Header.Set("X-Forwarded-For", "10.1.2.3, 172.16.0.1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	record := lastAuditRecord(t, buf)
	assert.Equal(t, "WARN", record.Level)
	assert.Equal(t, user.Id.String(), record.UserId)
	assert.Equal(t, schema.StudentRole, record.Role)
	assert.Equal(t, "10.1.2.3", record.ClientIp)
	assert.Equal(t, "PATCH", record.Method)
	assert.Equal(t, http.StatusForbidden, record.Status)
	assert.Equal(t, map[string]string{"project_id": projectId, "task_id": taskId}, record.Resources)
}

func TestAuditLoggerRedactsTokens(t *testing.T) {
	buf := new(bytes.Buffer)
	audit := NewAuditLogger(buf)
	router := auditedRouter(&audit, schema.User{Id: uuid.New(), Role: schema.AdminRole})

	projectId := uuid.NewString()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/projects/"+projectId+"/?token=secret-value&view=board", nil))
	require.Equal(t, http.StatusOK, w.Code)

	record := lastAuditRecord(t, buf)
	assert.Equal(t, "INFO", record.Level)
	assert.Equal(t, http.StatusOK, record.Status)
	assert.Equal(t, map[string]string{"project_id": projectId}, record.Resources)
	assert.Equal(t, map[string]string{"token": "[redacted]", "view": "board"}, record.QueryParams)
	assert.NotContains(t, buf.String(), "secret-value")
}
