package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"ineqmx/internal/config"
	"ineqmx/internal/files"
	"ineqmx/internal/infrastructure"
)

// ClientCounter reports connected WebSocket clients
type ClientCounter interface {
	ClientCount() int
}

// OperationLister reports operations the pipeline is currently running
type OperationLister interface {
	ActiveOperations() int
}

// HealthService provides health check functionality
type HealthService struct {
	version    string
	buildTime  string
	paths      *config.Paths
	operations OperationLister
	hub        ClientCounter
	results    *InequalityService
	startTime  time.Time
	logger     *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemStats represents system statistics
type SystemStats struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	TotalFiles       int     `json:"total_files"`
	TotalSizeBytes   int64   `json:"total_size_bytes"`
	ResultFiles      int     `json:"result_files"`
	CachedTables     int     `json:"cached_tables"`
	WebSocketClients int     `json:"websocket_clients"`
	ActiveOperations int     `json:"active_operations"`
	GoVersion        string  `json:"go_version"`
	OS               string  `json:"os"`
	Arch             string  `json:"arch"`
}

// NewHealthService creates a health service. Any dependency may be nil; its
// check then reports not_ready.
func NewHealthService(version, buildTime string, paths *config.Paths, ops OperationLister, hub ClientCounter, results *InequalityService, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &HealthService{
		version:    version,
		buildTime:  buildTime,
		paths:      paths,
		operations: ops,
		hub:        hub,
		results:    results,
		startTime:  time.Now(),
		logger:     infrastructure.WithComponent(logger, "health_service"),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck reports whether the data directories and the pipeline are usable
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]ServiceHealth{
			"data":       hs.checkData(),
			"operations": hs.checkOperations(),
			"websocket":  hs.checkWebSocket(),
		},
	}

	for name, service := range status.Services {
		if service.Status != "ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "service not ready",
				slog.String("service", name),
				slog.String("message", service.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":    hs.version,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"start_time": hs.startTime.Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	return result
}

// SystemStats returns system statistics
func (hs *HealthService) SystemStats(ctx context.Context) (SystemStats, error) {
	stats := SystemStats{
		UptimeSeconds: time.Since(hs.startTime).Seconds(),
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
	if hs.hub != nil {
		stats.WebSocketClients = hs.hub.ClientCount()
	}
	if hs.operations != nil {
		stats.ActiveOperations = hs.operations.ActiveOperations()
	}
	if hs.results != nil {
		stats.CachedTables = hs.results.CachedEntries()
	}
	if hs.paths == nil {
		return stats, nil
	}

	all, err := files.Find(hs.paths.DataDir, "**/*")
	if err != nil {
		return stats, fmt.Errorf("failed to scan data directory: %w", err)
	}
	stats.TotalFiles = len(all)
	stats.TotalSizeBytes = files.TotalSize(all)

	results, err := files.Find(hs.paths.ExternalDir, "resultados_*.csv")
	if err != nil {
		return stats, fmt.Errorf("failed to scan results directory: %w", err)
	}
	stats.ResultFiles = len(results)
	return stats, nil
}

func (hs *HealthService) checkData() ServiceHealth {
	if hs.paths == nil {
		return ServiceHealth{Status: "not_ready", Message: "paths not configured"}
	}
	info, err := os.Stat(hs.paths.DataDir)
	if err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("data directory unavailable: %v", err)}
	}
	if !info.IsDir() {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("%s is not a directory", hs.paths.DataDir)}
	}
	probe, err := os.CreateTemp(hs.paths.DataDir, ".ready-*")
	if err != nil {
		return ServiceHealth{Status: "not_ready", Message: fmt.Sprintf("cannot write to data directory: %v", err)}
	}
	probe.Close()
	os.Remove(probe.Name())
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkOperations() ServiceHealth {
	if hs.operations == nil {
		return ServiceHealth{Status: "not_ready", Message: "operation manager not initialized"}
	}
	return ServiceHealth{Status: "ready"}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "not_ready", Message: "websocket hub not initialized"}
	}
	return ServiceHealth{Status: "ready", Message: fmt.Sprintf("%d clients", hs.hub.ClientCount())}
}
