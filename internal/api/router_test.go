package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func getReady(t *testing.T, h http.Handler) (int, map[string]string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body.Data
}

func TestReadiness_AllHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := NewRouter(client, nil, RouterConfig{Postgres: pingFunc(func(context.Context) error { return nil })}, HandlerSet{})
	code, health := getReady(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{
		"status":   "healthy",
		"redis":    "healthy",
		"nats":     "not configured",
		"postgres": "healthy",
	}, health)
}

func TestReadiness_PostgresDown(t *testing.T) {
	h := NewRouter(nil, nil, RouterConfig{Postgres: pingFunc(func(context.Context) error {
		return errors.New("connection refused")
	})}, HandlerSet{})
	code, health := getReady(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", health["status"])
	assert.Equal(t, "unhealthy", health["postgres"])
	assert.Equal(t, "not configured", health["redis"])
}

func TestRouter_AuditRouteOnlyWhenEnabled(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(nil, nil, RouterConfig{}, HandlerSet{}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agents/a1/audit", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	called := false
	h := NewRouter(nil, nil, RouterConfig{}, HandlerSet{AuditLog: func(w http.ResponseWriter, r *http.Request) {
		called = true
		JSON(w, http.StatusOK, []string{})
	}})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agents/a1/audit", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestHandleError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, NewNotFoundError("memory not found"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"memory not found"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	HandleError(rec, errors.New("pq: relation does not exist"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestJSONPaginated(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONPaginated(rec, http.StatusOK, []int{1, 2}, 7, 2, 2)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":[1,2],"total_count":7,"page":2,"page_size":2}`, rec.Body.String())
}
