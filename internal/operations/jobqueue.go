package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"ineqmx/internal/infrastructure"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is an operation queued for asynchronous execution
type Job struct {
	ID          string                 `json:"id"`
	OperationID string                 `json:"operation_id"`
	Status      JobStatus              `json:"status"`
	Progress    int                    `json:"progress"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Request     OperationRequest       `json:"request"`
}

// JobStore interface for job persistence
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
	DeleteJob(id string) error

	SaveManifest(manifest *PipelineManifest) error
	GetManifestByOperationID(operationID string) (*PipelineManifest, error)
}

// JobFilter for querying jobs
type JobFilter struct {
	Status      JobStatus
	OperationID string
	Since       time.Time
	Limit       int
}

// JobQueue runs operations in background workers
type JobQueue struct {
	mu       sync.RWMutex
	jobs     chan *Job
	workers  int
	wg       sync.WaitGroup
	store    JobStore
	manager  *Manager
	logger   *slog.Logger
	shutdown chan struct{}
	stopOnce sync.Once
	active   map[string]*Job
	onFinish []func(Job)
}

// NewJobQueue creates a new job queue. Operations share the data
// directories, so a single worker is the usual configuration.
func NewJobQueue(workers int, store JobStore, manager *Manager, logger *slog.Logger) *JobQueue {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &JobQueue{
		jobs:     make(chan *Job, workers*8),
		workers:  workers,
		store:    store,
		manager:  manager,
		logger:   infrastructure.WithComponent(logger, "jobqueue"),
		shutdown: make(chan struct{}),
		active:   make(map[string]*Job),
	}
}

// OnFinish registers fn to be called with a copy of every job that reaches a
// terminal status. It must be called before Start.
func (q *JobQueue) OnFinish(fn func(Job)) {
	q.onFinish = append(q.onFinish, fn)
}

// Start begins processing jobs
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue", slog.Int("workers", q.workers))

	q.recoverJobs()
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop shuts down the job queue, waiting up to timeout for running jobs
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.logger.Info("stopping job queue")
	q.stopOnce.Do(func() { close(q.shutdown) })

	q.mu.RLock()
	for _, job := range q.active {
		_ = q.manager.CancelOperation(job.OperationID)
	}
	q.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// Submit validates the plan of req and queues it
func (q *JobQueue) Submit(ctx context.Context, req OperationRequest) (*Job, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if _, err := q.manager.Plan(req); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          uuid.NewString(),
		OperationID: req.ID,
		Request:     req,
		Metadata:    map[string]interface{}{},
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		job.Metadata["request_id"] = reqID
	}
	snapshot := copyJob(job)
	if err := q.Enqueue(job); err != nil {
		return nil, err
	}
	snapshot.Status = JobStatusPending
	snapshot.CreatedAt = job.CreatedAt
	snapshot.Message = "Waiting for a worker"
	return snapshot, nil
}

// Enqueue adds a job to the queue
func (q *JobQueue) Enqueue(job *Job) error {
	job.Status = JobStatusPending
	job.CreatedAt = time.Now()
	job.Message = "Waiting for a worker"

	if err := q.store.CreateJob(job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case q.jobs <- job:
		q.logger.Info("job enqueued",
			slog.String("job_id", job.ID),
			slog.String("operation_id", job.OperationID))
		return nil
	default:
		job.Status = JobStatusFailed
		job.Error = ErrQueueFull.Error()
		_ = q.store.UpdateJob(job)
		return ErrQueueFull
	}
}

// GetJob retrieves a job by ID, refreshing the progress of running jobs
func (q *JobQueue) GetJob(id string) (*Job, error) {
	job, err := q.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	if job.Status == JobStatusRunning {
		if snapshot, ok := q.manager.GetBroadcaster().GetSnapshot(job.OperationID); ok {
			job.Progress = snapshot.Progress
			if snapshot.CurrentStep != "" {
				job.Message = fmt.Sprintf("Running %s", snapshot.CurrentStep)
			}
		}
	}
	return job, nil
}

// CancelJob cancels a pending or running job
func (q *JobQueue) CancelJob(id string) error {
	job, err := q.store.GetJob(id)
	if err != nil {
		return err
	}

	switch job.Status {
	case JobStatusPending:
		now := time.Now()
		job.Status = JobStatusCancelled
		job.CompletedAt = &now
		job.Message = "Cancelled before start"
		return q.store.UpdateJob(job)
	case JobStatusRunning:
		return q.manager.CancelOperation(job.OperationID)
	default:
		return fmt.Errorf("job %s cannot be cancelled (status: %s)", id, job.Status)
	}
}

// ListJobs returns jobs matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

// GetManifest returns the manifest saved for an operation
func (q *JobQueue) GetManifest(operationID string) (*PipelineManifest, error) {
	return q.store.GetManifestByOperationID(operationID)
}

func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		case job := <-q.jobs:
			q.processJob(ctx, job, logger)
		}
	}
}

func (q *JobQueue) processJob(ctx context.Context, job *Job, logger *slog.Logger) {
	if reqID, ok := job.Metadata["request_id"].(string); ok {
		ctx = context.WithValue(ctx, middleware.RequestIDKey, reqID)
		ctx = infrastructure.WithTraceID(ctx, reqID)
	}
	logger = logger.With(
		slog.String("job_id", job.ID),
		slog.String("operation_id", job.OperationID),
	)

	// Jobs cancelled while queued, or queued twice by recovery, are dropped
	if stored, err := q.store.GetJob(job.ID); err == nil && stored.Status != JobStatusPending {
		logger.Info("skipping job", slog.String("status", string(stored.Status)))
		return
	}

	q.mu.Lock()
	q.active[job.ID] = job
	q.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("job processing panicked", slog.Any("panic", r))
			q.finish(job, JobStatusFailed, "Internal error occurred", fmt.Errorf("job processing panicked: %v", r), logger)
		}
		q.mu.Lock()
		delete(q.active, job.ID)
		q.mu.Unlock()
	}()

	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.Message = "Job started"
	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job status", slog.String("error", err.Error()))
	}
	logger.Info("processing job started")

	req := job.Request
	req.ID = job.OperationID
	resp, err := q.manager.Execute(ctx, req)

	if manifest, ok := q.manager.LastManifest(); ok && manifest.OperationID == job.OperationID {
		if saveErr := q.store.SaveManifest(manifest); saveErr != nil {
			logger.Warn("failed to save manifest", slog.String("error", saveErr.Error()))
		}
	}

	switch {
	case resp != nil && resp.Status == OperationStatusCancelled:
		q.finish(job, JobStatusCancelled, "Job cancelled", nil, logger)
	case err != nil:
		q.finish(job, JobStatusFailed, "Job failed", err, logger)
	default:
		q.finish(job, JobStatusCompleted, "Job completed successfully", nil, logger)
	}
}

func (q *JobQueue) finish(job *Job, status JobStatus, message string, err error, logger *slog.Logger) {
	now := time.Now()
	job.Status = status
	job.Message = message
	job.CompletedAt = &now
	if status == JobStatusCompleted {
		job.Progress = 100
	}
	if err != nil {
		job.Error = err.Error()
		logger.Error("job failed", slog.String("error", err.Error()))
	} else {
		logger.Info("job finished", slog.String("status", string(status)))
	}
	if updateErr := q.store.UpdateJob(job); updateErr != nil {
		logger.Error("failed to update job", slog.String("error", updateErr.Error()))
	}
	for _, fn := range q.onFinish {
		fn(*copyJob(job))
	}
}

// recoverJobs requeues jobs left pending or running by a previous process
func (q *JobQueue) recoverJobs() {
	var jobs []*Job
	for _, status := range []JobStatus{JobStatusRunning, JobStatusPending} {
		found, err := q.store.ListJobs(JobFilter{Status: status})
		if err != nil {
			q.logger.Error("failed to list jobs for recovery",
				slog.String("status", string(status)),
				slog.String("error", err.Error()))
			continue
		}
		jobs = append(jobs, found...)
	}

	for _, job := range jobs {
		if job.Status == JobStatusRunning {
			job.Status = JobStatusPending
			job.StartedAt = nil
			job.Progress = 0
			_ = q.store.UpdateJob(job)
		}
		select {
		case q.jobs <- job:
			q.logger.Info("recovered job", slog.String("job_id", job.ID))
		default:
			q.logger.Warn("could not recover job - queue full", slog.String("job_id", job.ID))
		}
	}
}

// GetQueueStats returns queue statistics
func (q *JobQueue) GetQueueStats() map[string]interface{} {
	q.mu.RLock()
	activeCount := len(q.active)
	q.mu.RUnlock()

	return map[string]interface{}{
		"workers":     q.workers,
		"queue_size":  len(q.jobs),
		"queue_cap":   cap(q.jobs),
		"active_jobs": activeCount,
	}
}

var (
	// ErrJobNotFound is returned by job stores for unknown IDs
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueFull is returned by Enqueue when every buffer slot is taken
	ErrQueueFull = errors.New("job queue is full")
)
