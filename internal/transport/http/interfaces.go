package http

import (
	"context"

	"ineqmx/internal/dataset"
	"ineqmx/internal/operations"
	"ineqmx/internal/services"
)

// OperationService is the pipeline API used by OperationsHandler
type OperationService interface {
	StartOperation(ctx context.Context, req operations.OperationRequest) (*operations.Job, error)
	GetJob(ctx context.Context, id string) (*operations.Job, error)
	CancelJob(ctx context.Context, id string) error
	ListJobs(ctx context.Context, status string, limit int) ([]*operations.Job, error)
	GetManifest(ctx context.Context, id string) (*operations.PipelineManifest, error)
	GetOperationTypes(ctx context.Context) []operations.OperationType
	GetOperationMetrics(ctx context.Context) (map[string]interface{}, error)
}

// InequalityService serves computed inequality tables
type InequalityService interface {
	Results(ctx context.Context, year int, level dataset.Level) (*services.InequalityReport, error)
}

// Hub interface defines WebSocket hub operations
type Hub interface {
	BroadcastUpdate(updateType, subtype, action string, data interface{})
}
