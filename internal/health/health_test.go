package health_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/quote-engine/internal/health"
	"github.com/fd1az/quote-engine/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s := health.NewServer(0, "v1.2.3", logger.NewNop())
	s.RegisterCheck("rpc", func(context.Context) (bool, string) { return true, "block 19000000" })

	rec := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var status health.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "v1.2.3", status.Version)
	assert.Equal(t, health.Check{Healthy: true, Message: "block 19000000"}, status.Checks["rpc"])

	s.RegisterCheck("redis", func(context.Context) (bool, string) { return false, "connection refused" })
	rec = get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "degraded", status.Status)
	assert.False(t, status.Checks["redis"].Healthy)
}

func TestServer_Ready(t *testing.T) {
	s := health.NewServer(0, "", logger.NewNop())
	healthy := false
	s.RegisterCheck("head", func(context.Context) (bool, string) { return healthy, "" })

	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/ready").Code)

	s.MarkReady()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/ready").Code)

	healthy = true
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/ready").Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/live").Code)
}

func TestServer_ChecksSeeDeadline(t *testing.T) {
	s := health.NewServer(0, "", logger.NewNop())
	s.RegisterCheck("slow", func(ctx context.Context) (bool, string) {
		_, ok := ctx.Deadline()
		return ok, ""
	})
	assert.Equal(t, "ok", s.Run(context.Background()).Status)
}
