package operations

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryJobStore is an in-memory implementation of JobStore. It stores
// copies so callers may keep mutating the jobs they pass in.
type MemoryJobStore struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	manifests map[string]*PipelineManifest
}

// NewMemoryJobStore creates a new in-memory job store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:      make(map[string]*Job),
		manifests: make(map[string]*PipelineManifest),
	}
}

func copyJob(job *Job) *Job {
	c := *job
	c.Metadata = maps.Clone(job.Metadata)
	c.Request.Steps = slices.Clone(job.Request.Steps)
	return &c
}

// CreateJob creates a new job
func (s *MemoryJobStore) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// GetJob retrieves a job by ID
func (s *MemoryJobStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return copyJob(job), nil
}

// UpdateJob updates an existing job
func (s *MemoryJobStore) UpdateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// ListJobs returns jobs matching the filter, newest first
func (s *MemoryJobStore) ListJobs(filter JobFilter) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.OperationID != "" && job.OperationID != filter.OperationID {
			continue
		}
		if !filter.Since.IsZero() && job.CreatedAt.Before(filter.Since) {
			continue
		}
		result = append(result, copyJob(job))
	}

	slices.SortFunc(result, func(a, b *Job) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// DeleteJob removes a job
func (s *MemoryJobStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(s.jobs, id)
	return nil
}

// SaveManifest stores the manifest of an operation
func (s *MemoryJobStore) SaveManifest(manifest *PipelineManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[manifest.OperationID] = manifest.Clone()
	return nil
}

// GetManifestByOperationID returns the manifest of an operation
func (s *MemoryJobStore) GetManifestByOperationID(operationID string) (*PipelineManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manifest, exists := s.manifests[operationID]
	if !exists {
		return nil, fmt.Errorf("manifest for operation %s not found", operationID)
	}
	return manifest.Clone(), nil
}

// CleanupOldJobs removes finished jobs completed before maxAge ago
func (s *MemoryJobStore) CleanupOldJobs(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range s.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			delete(s.manifests, job.OperationID)
			removed++
		}
	}
	return removed
}

// GetStats returns the number of jobs per status
func (s *MemoryJobStore) GetStats() map[JobStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[JobStatus]int)
	for _, job := range s.jobs {
		stats[job.Status]++
	}
	return stats
}
