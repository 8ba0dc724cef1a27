package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "ineqmx/internal/errors"
	"ineqmx/internal/infrastructure"
	"ineqmx/internal/operations"
)

// OperationService starts pipeline runs in the background and reports on them
type OperationService struct {
	queue    *operations.JobQueue
	manager  *operations.Manager
	validate *validator.Validate
	logger   *slog.Logger
}

// NewOperationService creates a new operation service
func NewOperationService(queue *operations.JobQueue, manager *operations.Manager, logger *slog.Logger) *OperationService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &OperationService{
		queue:    queue,
		manager:  manager,
		validate: validator.New(),
		logger:   infrastructure.WithComponent(logger, "operation_service"),
	}
}

// StartOperation validates req and queues it. The returned job is pending.
func (s *OperationService) StartOperation(ctx context.Context, req operations.OperationRequest) (*operations.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.NewAppValidationError(validationMessage(err))
	}
	steps, err := s.manager.Plan(req)
	if err != nil {
		return nil, apperrors.NewAppValidationError(err.Error())
	}

	job, err := s.queue.Submit(ctx, req)
	if errors.Is(err, operations.ErrQueueFull) {
		return nil, apperrors.ErrQueueFull
	}
	if err != nil {
		return nil, apperrors.NewConflictError(fmt.Sprintf("failed to queue operation: %v", err))
	}

	ids := make([]string, len(steps))
	for i, step := range steps {
		ids[i] = step.ID()
	}
	s.logger.InfoContext(ctx, "operation queued",
		slog.String("job_id", job.ID),
		slog.String("operation_id", job.OperationID),
		slog.String("mode", req.Mode),
		slog.Any("steps", ids))
	return job, nil
}

// GetJob returns a job with its current progress
func (s *OperationService) GetJob(ctx context.Context, id string) (*operations.Job, error) {
	if id == "" {
		return nil, apperrors.NewAppValidationError("job ID is required")
	}
	job, err := s.queue.GetJob(id)
	if err != nil {
		if errors.Is(err, operations.ErrJobNotFound) {
			return nil, apperrors.NewNotFoundError("job").WithContext("job_id", id)
		}
		return nil, err
	}
	return job, nil
}

// CancelJob stops a pending or running job
func (s *OperationService) CancelJob(ctx context.Context, id string) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if err := s.queue.CancelJob(id); err != nil {
		if errors.Is(err, operations.ErrOperationNotFound) || errors.Is(err, operations.ErrOperationNotRunning) {
			return apperrors.NewConflictError("job is not running").WithContext("job_id", id)
		}
		return apperrors.NewConflictError(err.Error()).WithContext("job_id", id)
	}
	s.logger.InfoContext(ctx, "job cancelled",
		slog.String("job_id", id),
		slog.String("previous_status", string(job.Status)))
	return nil
}

// ListJobs returns the most recent jobs, optionally filtered by status
func (s *OperationService) ListJobs(ctx context.Context, status string, limit int) ([]*operations.Job, error) {
	filter := operations.JobFilter{Limit: limit}
	if status != "" {
		st := operations.JobStatus(strings.ToLower(status))
		switch st {
		case operations.JobStatusPending, operations.JobStatusRunning, operations.JobStatusCompleted,
			operations.JobStatusFailed, operations.JobStatusCancelled:
			filter.Status = st
		default:
			return nil, apperrors.NewAppValidationError(fmt.Sprintf("unknown job status %q", status))
		}
	}
	jobs, err := s.queue.ListJobs(filter)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list jobs", err)
	}
	return jobs, nil
}

// GetManifest returns the data manifest recorded for a job's operation
func (s *OperationService) GetManifest(ctx context.Context, id string) (*operations.PipelineManifest, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	manifest, err := s.queue.GetManifest(job.OperationID)
	if err != nil {
		return nil, apperrors.NewNotFoundError("manifest").WithContext("job_id", id)
	}
	return manifest, nil
}

// GetOperationTypes returns the steps that can be requested
func (s *OperationService) GetOperationTypes(ctx context.Context) []operations.OperationType {
	return s.manager.OperationTypes()
}

// GetOperationMetrics summarises jobs by status together with queue usage
func (s *OperationService) GetOperationMetrics(ctx context.Context) (map[string]interface{}, error) {
	jobs, err := s.queue.ListJobs(operations.JobFilter{})
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list jobs", err)
	}

	counts := map[operations.JobStatus]int{}
	for _, job := range jobs {
		counts[job.Status]++
	}

	return map[string]interface{}{
		"total_jobs":     len(jobs),
		"pending_jobs":   counts[operations.JobStatusPending],
		"running_jobs":   counts[operations.JobStatusRunning],
		"completed_jobs": counts[operations.JobStatusCompleted],
		"failed_jobs":    counts[operations.JobStatusFailed] + counts[operations.JobStatusCancelled],
		"queue":          s.queue.GetQueueStats(),
		"timestamp":      time.Now().Unix(),
	}, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
