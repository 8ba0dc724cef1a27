package operations

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker tracks progress of a step over a known number of items
// and forwards it to the step state and the broadcaster
type ProgressTracker struct {
	mu          sync.Mutex
	operationID string
	step        *StepState
	broadcaster *StatusBroadcaster
	Total       int
	Current     int
	StartTime   time.Time
	Message     string
}

// NewProgressTracker creates a tracker for total items of a step
func NewProgressTracker(state *OperationState, stepID string, total int, broadcaster *StatusBroadcaster) *ProgressTracker {
	var step *StepState
	var operationID string
	if state != nil {
		step = state.GetStage(stepID)
		operationID = state.ID
	}
	if step == nil {
		step = NewStepState(stepID, stepID)
	}
	return &ProgressTracker{
		operationID: operationID,
		step:        step,
		broadcaster: broadcaster,
		Total:       total,
		StartTime:   time.Now(),
	}
}

// ReportProgress implements ProgressReporter
func (p *ProgressTracker) ReportProgress(progress int, message string) error {
	p.step.UpdateProgress(float64(progress), message)
	if p.broadcaster != nil && p.operationID != "" {
		p.broadcaster.UpdateStepProgress(p.operationID, p.step.ID, progress, message)
	}
	return nil
}

// Increment marks one more item as done
func (p *ProgressTracker) Increment(message string) {
	p.mu.Lock()
	p.Current++
	p.Message = message
	pct := p.percentage()
	p.mu.Unlock()

	_ = p.ReportProgress(pct, message)
}

func (p *ProgressTracker) percentage() int {
	if p.Total <= 0 {
		return 0
	}
	return min(100, p.Current*100/p.Total)
}

// GetProgress returns the current progress state
func (p *ProgressTracker) GetProgress() (current, total, percentage int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Current, p.Total, p.percentage(), p.Message
}

// GetETA estimates the time remaining
func (p *ProgressTracker) GetETA() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Current == 0 || p.Total == 0 {
		return "calculating..."
	}
	elapsed := time.Since(p.StartTime)
	perItem := elapsed / time.Duration(p.Current)
	return formatDuration(perItem * time.Duration(p.Total-p.Current))
}

// IsComplete returns true once every item is done
func (p *ProgressTracker) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Current >= p.Total
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1f minutes", d.Minutes())
	default:
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
}
