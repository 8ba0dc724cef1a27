package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/services"
)

// MockHealthReporter is a mock implementation of HealthReporter
type MockHealthReporter struct {
	mock.Mock
}

func (m *MockHealthReporter) HealthCheck(ctx context.Context) services.HealthStatus {
	return m.Called(ctx).Get(0).(services.HealthStatus)
}

func (m *MockHealthReporter) ReadinessCheck(ctx context.Context) services.HealthStatus {
	return m.Called(ctx).Get(0).(services.HealthStatus)
}

func (m *MockHealthReporter) LivenessCheck(ctx context.Context) services.HealthStatus {
	return m.Called(ctx).Get(0).(services.HealthStatus)
}

func (m *MockHealthReporter) Version() map[string]interface{} {
	return m.Called().Get(0).(map[string]interface{})
}

func (m *MockHealthReporter) SystemStats(ctx context.Context) (services.SystemStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(services.SystemStats), args.Error(1)
}

func setupHealthHandler(t *testing.T) (chi.Router, *MockHealthReporter) {
	t.Helper()
	service := &MockHealthReporter{}
	logger := discardLogger()
	handler := NewHealthHandler(service, apperrors.NewErrorHandler(logger, false), logger)

	r := chi.NewRouter()
	r.Mount("/api/health", handler.Routes())
	r.Get("/api/version", handler.Version)
	t.Cleanup(func() { service.AssertExpectations(t) })
	return r, service
}

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name           string
		status         string
		expectedStatus int
	}{
		{"ready", "ready", http.StatusOK},
		{"not ready", "not_ready", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, service := setupHealthHandler(t)
			service.On("ReadinessCheck", mock.Anything).Return(services.HealthStatus{
				Status:    tt.status,
				Timestamp: time.Now(),
				Services: map[string]services.ServiceHealth{
					"data": {Status: tt.status},
				},
			})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/ready", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.status, decodeBody(t, rec)["status"])
		})
	}
}

func TestHealthHandler_Endpoints(t *testing.T) {
	router, service := setupHealthHandler(t)
	service.On("HealthCheck", mock.Anything).Return(services.HealthStatus{Status: "ok", Version: "1.2.0"})
	service.On("LivenessCheck", mock.Anything).Return(services.HealthStatus{Status: "alive"})
	service.On("Version").Return(map[string]interface{}{"version": "1.2.0"})
	service.On("SystemStats", mock.Anything).Return(services.SystemStats{ResultFiles: 3, CachedTables: 2}, nil)

	tests := []struct {
		path  string
		key   string
		value interface{}
	}{
		{"/api/health/", "status", "ok"},
		{"/api/health/live", "status", "alive"},
		{"/api/version", "version", "1.2.0"},
		{"/api/health/stats", "result_files", float64(3)},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.value, decodeBody(t, rec)[tt.key])
		})
	}
}

func TestHealthHandler_StatsError(t *testing.T) {
	router, service := setupHealthHandler(t)
	service.On("SystemStats", mock.Anything).
		Return(services.SystemStats{}, apperrors.NewStorageError("walk data dir", errors.New("permission denied")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
