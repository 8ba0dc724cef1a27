package operations

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"ineqmx/internal/dataset"
)

// OperationStatusValue represents the overall operation status enum
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// OperationState represents the complete state of an operation execution
type OperationState struct {
	mu sync.RWMutex

	ID        string               `json:"id"`
	Status    OperationStatusValue `json:"status"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`

	Steps map[string]*StepState `json:"steps"`

	// Context passes data between steps
	Context map[string]interface{} `json:"-"`

	// Config holds the request parameters
	Config map[string]interface{} `json:"config"`

	Error error `json:"-"`
}

// NewOperationState creates a new operation state
func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:        id,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
		Context:   make(map[string]interface{}),
		Config:    make(map[string]interface{}),
	}
}

// Start marks the operation as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the operation as completed
func (p *OperationState) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCompleted
}

// Fail marks the operation as failed
func (p *OperationState) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusFailed
	p.Error = err
}

// Cancel marks the operation as cancelled
func (p *OperationState) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = OperationStatusCancelled
}

// GetStatus returns the operation status
func (p *OperationState) GetStatus() OperationStatusValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// GetStage returns the state of a specific step
func (p *OperationState) GetStage(stageID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[stageID]
}

// SetStage updates the state of a specific step
func (p *OperationState) SetStage(stageID string, state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Steps[stageID] = state
}

// GetContext retrieves a value from the operation context
func (p *OperationState) GetContext(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Context[key]
	return val, ok
}

// SetContext sets a value in the operation context
func (p *OperationState) SetContext(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Context[key] = value
}

// GetConfig retrieves a configuration value
func (p *OperationState) GetConfig(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Config[key]
	return val, ok
}

// SetConfig sets a configuration value
func (p *OperationState) SetConfig(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Config[key] = value
}

// Ints reads an integer list from the config. Values decoded from JSON
// arrive as []interface{} of float64 and are accepted too.
func (p *OperationState) Ints(key string, fallback []int) ([]int, error) {
	raw, ok := p.GetConfig(key)
	if !ok || raw == nil {
		return fallback, nil
	}
	switch v := raw.(type) {
	case []int:
		if len(v) == 0 {
			return fallback, nil
		}
		return v, nil
	case []interface{}:
		if len(v) == 0 {
			return fallback, nil
		}
		out := make([]int, 0, len(v))
		for _, item := range v {
			n, err := toInt(item)
			if err != nil {
				return nil, NewValidationError(key, err.Error())
			}
			out = append(out, n)
		}
		return out, nil
	case []string:
		if len(v) == 0 {
			return fallback, nil
		}
		out := make([]int, 0, len(v))
		for _, item := range v {
			n, err := strconv.Atoi(item)
			if err != nil {
				return nil, NewValidationError(key, err.Error())
			}
			out = append(out, n)
		}
		return out, nil
	default:
		return nil, NewValidationError(key, fmt.Sprintf("unsupported type %T", raw))
	}
}

// Levels reads the requested aggregation levels, defaulting to all of them.
func (p *OperationState) Levels() ([]dataset.Level, error) {
	raw, ok := p.GetConfig(ContextKeyLevels)
	if !ok || raw == nil {
		return slices.Clone(dataset.Levels), nil
	}
	var names []string
	switch v := raw.(type) {
	case []string:
		names = v
	case []interface{}:
		for _, item := range v {
			names = append(names, fmt.Sprint(item))
		}
	case []dataset.Level:
		if len(v) == 0 {
			return slices.Clone(dataset.Levels), nil
		}
		return v, nil
	default:
		return nil, NewValidationError(ContextKeyLevels, fmt.Sprintf("unsupported type %T", raw))
	}
	if len(names) == 0 {
		return slices.Clone(dataset.Levels), nil
	}
	levels := make([]dataset.Level, 0, len(names))
	for _, name := range names {
		level, err := dataset.ParseLevel(name)
		if err != nil {
			return nil, NewValidationError(ContextKeyLevels, err.Error())
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported value %v", v)
	}
}

// Duration returns the duration of the operation execution
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

func (p *OperationState) stepsWithStatus(status StepStatus) []*StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []*StepState
	for _, step := range p.Steps {
		if step.GetStatus() == status {
			out = append(out, step)
		}
	}
	return out
}

// GetActiveStages returns all currently active steps
func (p *OperationState) GetActiveStages() []*StepState {
	return p.stepsWithStatus(StepStatusActive)
}

// GetCompletedStages returns all completed steps
func (p *OperationState) GetCompletedStages() []*StepState {
	return p.stepsWithStatus(StepStatusCompleted)
}

// GetFailedStages returns all failed steps
func (p *OperationState) GetFailedStages() []*StepState {
	return p.stepsWithStatus(StepStatusFailed)
}

// IsComplete returns true if all steps are completed or skipped
func (p *OperationState) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, step := range p.Steps {
		status := step.GetStatus()
		if status == StepStatusPending || status == StepStatusActive {
			return false
		}
	}
	return true
}

// HasFailures returns true if any step has failed
func (p *OperationState) HasFailures() bool {
	return len(p.GetFailedStages()) > 0
}

// Clone creates a deep copy of the operation state
func (p *OperationState) Clone() *OperationState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clone := &OperationState{
		ID:        p.ID,
		Status:    p.Status,
		StartTime: p.StartTime,
		Steps:     make(map[string]*StepState, len(p.Steps)),
		Context:   make(map[string]interface{}, len(p.Context)),
		Config:    make(map[string]interface{}, len(p.Config)),
		Error:     p.Error,
	}

	if p.EndTime != nil {
		endTime := *p.EndTime
		clone.EndTime = &endTime
	}
	for k, v := range p.Steps {
		clone.Steps[k] = v.Clone()
	}
	for k, v := range p.Context {
		clone.Context[k] = v
	}
	for k, v := range p.Config {
		clone.Config[k] = v
	}

	return clone
}
