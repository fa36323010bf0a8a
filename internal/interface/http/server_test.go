package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowscan/glowscan-core/internal/application/query"
	"github.com/glowscan/glowscan-core/internal/domain/shared"
)

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	health := NewHealthChecker("1.2.3")
	health.AddCheck("postgres", func(context.Context) error { return nil })
	s := NewServer(DefaultConfig(":0"), Dependencies{Health: health})

	rec := serve(t, s, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Healthy)
	assert.Equal(t, "1.2.3", status.Version)
	assert.True(t, status.Checks["postgres"].Healthy)

	assert.Equal(t, http.StatusOK, serve(t, s, "/ready").Code)
	assert.Equal(t, http.StatusOK, serve(t, s, "/live").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, s, "/metrics").Code)
}

func TestHealthEndpoints_Unhealthy(t *testing.T) {
	health := NewHealthChecker("")
	health.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	health.AddCheck("postgres", func(context.Context) error { return errors.New("timeout") })
	health.AddCheck("vision", func(context.Context) error { return nil })
	s := NewServer(DefaultConfig(":0"), Dependencies{Health: health})

	rec := serve(t, s, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Healthy)
	assert.Equal(t, "failed checks: postgres, redis", status.Message)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)

	ready := serve(t, s, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, ready.Code)
	assert.Contains(t, ready.Body.String(), "not_ready")
	assert.Equal(t, http.StatusOK, serve(t, s, "/live").Code)
}

func TestHealthChecker_Timeout(t *testing.T) {
	health := NewHealthChecker("")
	health.SetTimeout(10 * time.Millisecond)
	health.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := health.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("glowscan_core_ingests_total 1\n"))
	})
	s := NewServer(DefaultConfig(":0"), Dependencies{Metrics: metrics})

	rec := serve(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "glowscan_core_ingests_total")
}

func TestDashboardRoute(t *testing.T) {
	dashboard := func(_ context.Context, userID string) (*query.DashboardDTO, error) {
		switch userID {
		case "u1":
			return &query.DashboardDTO{UserID: "u1", TotalScans: 4, Streak: 2}, nil
		case "broken":
			return nil, shared.NewDomainError("history", "Reload", shared.ErrStoreUnavailable, "list scans")
		case "bad":
			return nil, shared.NewDomainError("scan", "Validate", shared.ErrMalformedInput, "bad")
		default:
			return nil, errors.New("unexpected")
		}
	}
	s := NewServer(DefaultConfig(":0"), Dependencies{Dashboard: dashboard})

	rec := serve(t, s, "/api/v1/users/u1/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	var dto query.DashboardDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto))
	assert.Equal(t, 4, dto.TotalScans)
	assert.Equal(t, 2, dto.Streak)

	rec = serve(t, s, "/api/v1/users/broken/dashboard")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store_unavailable"`)

	assert.Equal(t, http.StatusBadRequest, serve(t, s, "/api/v1/users/bad/dashboard").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(t, s, "/api/v1/users/other/dashboard").Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	s := NewServer(DefaultConfig(":0"), Dependencies{
		Dashboard: func(context.Context, string) (*query.DashboardDTO, error) { panic("boom") },
	})

	rec := serve(t, s, "/api/v1/users/u1/dashboard")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := NewServer(DefaultConfig(":0"), Dependencies{})
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-1")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-ID"))
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{shared.ErrMissingUserID, http.StatusBadRequest},
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrTimeout, http.StatusServiceUnavailable},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
