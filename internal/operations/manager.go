package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"ineqmx/internal/infrastructure"
)

// Manager orchestrates operation execution
type Manager struct {
	registry    *Registry
	config      *Config
	hub         WebSocketHub
	broadcaster *StatusBroadcaster
	logger      *slog.Logger
	metrics     *infrastructure.Metrics
	scanner     func(*PipelineManifest)

	mu           sync.RWMutex
	operations   map[string]*OperationState
	cancels      map[string]context.CancelFunc
	lastManifest *PipelineManifest
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records step durations and outcomes
func WithMetrics(metrics *infrastructure.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithManifestScanner sets the function that records the data already on
// disk before an operation starts
func WithManifestScanner(scan func(*PipelineManifest)) ManagerOption {
	return func(m *Manager) {
		m.scanner = scan
	}
}

// NewManager creates a new operation manager
func NewManager(hub WebSocketHub, registry *Registry, config *Config, opts ...ManagerOption) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}

	m := &Manager{
		registry:   registry,
		config:     config,
		hub:        hub,
		logger:     slog.Default(),
		operations: make(map[string]*OperationState),
		cancels:    make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = infrastructure.WithComponent(m.logger, "operations")
	m.broadcaster = NewStatusBroadcaster(hub, m.logger)
	return m
}

// RegisterStage registers a step with the manager
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// GetRegistry returns the registry of steps
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetBroadcaster returns the status broadcaster
func (m *Manager) GetBroadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// OperationTypes describes the registered steps for API clients
func (m *Manager) OperationTypes() []OperationType {
	steps := m.registry.List()
	types := make([]OperationType, 0, len(steps)+1)
	types = append(types, OperationType{
		ID:          FullPipeline,
		Name:        "Full Pipeline",
		Description: "Download, clean and compute every inequality table",
		CanRunAlone: true,
		Parameters: []ParameterDefinition{
			{Name: "mode", Type: "select", Description: "Download archives or reuse the ones on disk", Default: ModeFull, Options: []string{ModeFull, ModeOffline}},
			{Name: "enigh_years", Type: "string", Description: "Comma separated ENIGH years"},
			{Name: "enco_years", Type: "string", Description: "Comma separated ENCO years"},
			{Name: "levels", Type: "select", Description: "Aggregation levels", Options: []string{"national", "state", "municipal"}},
		},
	})
	for _, step := range steps {
		types = append(types, OperationType{
			ID:           step.ID(),
			Name:         step.Name(),
			Description:  fmt.Sprintf("Run the %s step on its own", step.Name()),
			Dependencies: step.GetDependencies(),
			CanRunAlone:  true,
		})
	}
	return types
}

// Plan returns the steps a request would run, in execution order
func (m *Manager) Plan(req OperationRequest) ([]Step, error) {
	ids := slices.Clone(req.Steps)
	if len(ids) == 0 {
		if step, ok := req.Parameters["step"].(string); ok && step != "" && step != FullPipeline {
			ids = []string{step}
		}
	}
	if slices.Contains(ids, FullPipeline) {
		ids = nil
	}

	steps, err := m.registry.Plan(ids)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 && req.Mode == ModeOffline {
		steps = slices.DeleteFunc(steps, func(s Step) bool { return s.ID() == StageIDDownload })
	}
	if len(steps) == 0 {
		return nil, NewValidationError("", "no steps to execute")
	}
	return steps, nil
}

// Execute runs an operation with the given request
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Mode == "" {
		req.Mode = ModeFull
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx, span := infrastructure.StartSpan(ctx, "operations.execute",
		attribute.String("operation.id", req.ID),
		attribute.String("operation.mode", req.Mode))
	defer span.End()

	state := NewOperationState(req.ID)
	state.SetConfig(ContextKeyMode, req.Mode)
	if len(req.EnighYears) > 0 {
		state.SetConfig(ContextKeyEnighYears, req.EnighYears)
	}
	if len(req.EncoYears) > 0 {
		state.SetConfig(ContextKeyEncoYears, req.EncoYears)
	}
	if len(req.Levels) > 0 {
		state.SetConfig(ContextKeyLevels, req.Levels)
	}
	for k, v := range req.Parameters {
		state.SetConfig(k, v)
	}

	m.storeOperation(state, cancel)
	defer m.removeOperation(req.ID)

	steps, err := m.Plan(req)
	if err != nil {
		m.logOperationError(ctx, req.ID, err)
		state.Fail(err)
		m.broadcaster.FailOperation(req.ID, err)
		return m.createResponse(state), err
	}

	manifest := NewPipelineManifest(req.ID, req.Mode)
	manifest.SetPlannedStages(len(steps))
	if m.scanner != nil {
		m.scanner(manifest)
	}

	for _, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
	}
	m.broadcaster.CreateOperation(req.ID, steps)

	m.logOperationStart(ctx, req.ID, req, steps)
	state.Start()
	m.broadcaster.StartOperation(req.ID)

	err = m.executeSequential(ctx, state, steps, manifest)

	switch {
	case err != nil && (state.GetStatus() == OperationStatusCancelled || errors.Is(ctx.Err(), context.Canceled)):
		state.Cancel()
		m.broadcaster.CancelOperation(req.ID)
		manifest.SetStatus(string(OperationStatusCancelled))
	case err != nil:
		m.logOperationError(ctx, req.ID, err)
		infrastructure.RecordError(ctx, err)
		state.Fail(err)
		m.broadcaster.FailOperation(req.ID, err)
		manifest.SetStatus(string(OperationStatusFailed))
	default:
		state.Complete()
		m.broadcaster.CompleteOperation(req.ID, "Operation completed successfully")
		manifest.SetStatus(string(OperationStatusCompleted))
	}
	m.logOperationComplete(ctx, req.ID, state.Duration(), state.GetStatus())

	m.mu.Lock()
	m.lastManifest = manifest
	m.mu.Unlock()
	if m.config.ManifestFile != "" {
		if saveErr := manifest.SaveToFile(m.config.ManifestFile); saveErr != nil {
			m.logger.WarnContext(ctx, "failed to save manifest",
				slog.String("path", m.config.ManifestFile),
				slog.String("error", saveErr.Error()))
		}
	}

	return m.createResponse(state), err
}

// executeSequential runs steps in dependency order. A failed step skips
// every step depending on it; with ContinueOnError the independent steps
// still run and the failures are returned together.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step, manifest *PipelineManifest) error {
	var failures []error
	for _, step := range steps {
		if ctx.Err() != nil {
			return NewCancellationError(step.ID())
		}

		stepState := state.GetStage(step.ID())
		if stepState.GetStatus() == StepStatusSkipped {
			continue
		}

		err := m.executeStage(ctx, state, step, manifest)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return NewCancellationError(step.ID())
		}

		m.logStageError(ctx, state.ID, step.ID(), err)
		m.skipDependentStages(ctx, state, manifest, step.ID())
		if !m.config.ContinueOnError {
			return err
		}
		failures = append(failures, err)
	}
	return errors.Join(failures...)
}

// executeStage executes a single step with timeout and retry
func (m *Manager) executeStage(ctx context.Context, state *OperationState, step Step, manifest *PipelineManifest) error {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return ErrStepStateMissing
	}

	if err := m.checkDependencies(state, step, manifest); err != nil {
		m.skipStage(ctx, state, manifest, step, fmt.Sprintf("Dependencies not met: %s", err.Message))
		return err
	}
	if err := step.Validate(state); err != nil {
		m.skipStage(ctx, state, manifest, step, fmt.Sprintf("Validation failed: %v", err))
		return NewValidationError(step.ID(), err.Error())
	}

	timeout := m.config.GetStageTimeout(step.ID())
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stageCtx, span := infrastructure.StartSpan(stageCtx, "operations.step",
		attribute.String("operation.id", state.ID),
		attribute.String("step.id", step.ID()))
	defer span.End()

	retryConfig := m.config.RetryConfig
	attempts := max(retryConfig.MaxAttempts, 1)

	var lastErr error
retry:
	for attempt := 1; attempt <= attempts; attempt++ {
		stepState.Start()
		manifest.RecordStageStart(step.ID(), step.Name())
		m.broadcaster.StartStep(state.ID, step.ID())
		m.logStageStart(ctx, state.ID, step.ID(), attempt)

		start := time.Now()
		err := step.Execute(stageCtx, state)
		duration := time.Since(start)
		m.metrics.RecordStep(stageCtx, step.ID(), duration, err)

		if err == nil {
			stepState.Complete()
			m.recordOutputs(ctx, step, manifest, stepState)
			m.broadcaster.CompleteStep(state.ID, step.ID(), "Step completed successfully")
			m.logStageComplete(ctx, state.ID, step.ID(), duration)
			return nil
		}
		lastErr = err

		if errors.Is(stageCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			lastErr = NewTimeoutError(step.ID(), timeout)
			break retry
		}
		if ctx.Err() != nil || !IsRetryable(err) || attempt == attempts {
			break retry
		}

		delay := m.calculateRetryDelay(attempt, retryConfig)
		m.logger.WarnContext(ctx, "stage_retry",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-stageCtx.Done():
			if ctx.Err() == nil {
				lastErr = NewTimeoutError(step.ID(), timeout)
			}
			break retry
		}
	}

	infrastructure.RecordError(stageCtx, lastErr)
	stepState.Fail(lastErr)
	manifest.RecordStageFailure(step.ID(), lastErr)
	m.broadcaster.FailStep(state.ID, step.ID(), lastErr)
	return NewStepFailure(step.ID(), lastErr)
}

func (m *Manager) recordOutputs(ctx context.Context, step Step, manifest *PipelineManifest, stepState *StepState) {
	outputs := step.ProducedOutputs()
	types := make([]string, 0, len(outputs))
	for _, out := range outputs {
		if err := manifest.ScanDataDirectory(out.Type, out.Location, out.Pattern); err != nil {
			m.logger.WarnContext(ctx, "failed to scan step output",
				slog.String("step", step.ID()),
				slog.String("location", out.Location),
				slog.String("error", err.Error()))
			continue
		}
		if info, ok := manifest.GetData(out.Type); ok {
			info.CreatedBy = step.ID()
		}
		types = append(types, out.Type)
	}
	metadata := maps.Clone(stepState.Clone().Metadata)
	manifest.RecordStageCompletion(step.ID(), types, metadata)
}

func (m *Manager) skipStage(ctx context.Context, state *OperationState, manifest *PipelineManifest, step Step, reason string) {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return
	}
	stepState.Skip(reason)
	manifest.RecordStageSkipped(step.ID(), step.Name(), reason)
	m.broadcaster.SkipStep(state.ID, step.ID(), reason)
	m.logStageSkipped(ctx, state.ID, step.ID(), reason)
}

// skipDependentStages marks every pending step depending on the failed step as skipped
func (m *Manager) skipDependentStages(ctx context.Context, state *OperationState, manifest *PipelineManifest, failedStageID string) {
	for _, id := range m.registry.GetDependents(failedStageID) {
		stepState := state.GetStage(id)
		if stepState == nil || stepState.GetStatus() != StepStatusPending {
			continue
		}
		step, err := m.registry.Get(id)
		if err != nil {
			continue
		}
		m.skipStage(ctx, state, manifest, step, fmt.Sprintf("Dependency %s failed", failedStageID))
	}
}

// checkDependencies verifies that dependencies within the operation have
// completed. Dependencies outside the operation are satisfied by the data
// the step requires being present in the manifest.
func (m *Manager) checkDependencies(state *OperationState, step Step, manifest *PipelineManifest) *StepError {
	external := false
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			external = true
			continue
		}
		if status := depState.GetStatus(); status != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep, fmt.Sprintf("dependency %s not completed (status: %s)", dep, status))
		}
	}
	if external && !step.CanRun(manifest) {
		missing := make([]string, 0)
		for _, req := range step.RequiredInputs() {
			if !req.Optional && !manifest.HasData(req.Type) {
				missing = append(missing, req.Type)
			}
		}
		return NewDependencyError(step.ID(), "", fmt.Sprintf("required data not available: %v", missing))
	}
	return nil
}

// calculateRetryDelay grows the delay exponentially from InitialDelay
func (m *Manager) calculateRetryDelay(attempt int, config RetryConfig) time.Duration {
	multiplier := config.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

func (m *Manager) createResponse(state *OperationState) *OperationResponse {
	clone := state.Clone()
	resp := &OperationResponse{
		ID:       clone.ID,
		Status:   clone.Status,
		Duration: clone.Duration(),
		Steps:    clone.Steps,
	}
	if clone.Error != nil {
		resp.Error = clone.Error.Error()
	}
	return resp
}

// GetOperation retrieves the state of a running operation
func (m *Manager) GetOperation(id string) (*OperationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.operations[id]
	if !exists {
		return nil, ErrOperationNotFound
	}
	return state.Clone(), nil
}

// ListOperations returns all running operations
func (m *Manager) ListOperations() []*OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	operations := make([]*OperationState, 0, len(m.operations))
	for _, state := range m.operations {
		operations = append(operations, state.Clone())
	}
	return operations
}

// ActiveOperations counts operations that are pending or running
func (m *Manager) ActiveOperations() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, state := range m.operations {
		if status := state.GetStatus(); status == OperationStatusRunning || status == OperationStatusPending {
			n++
		}
	}
	return n
}

// LastManifest returns a copy of the manifest of the most recent operation
func (m *Manager) LastManifest() (*PipelineManifest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastManifest == nil {
		return nil, false
	}
	return m.lastManifest.Clone(), true
}

// CancelOperation cancels a running operation
func (m *Manager) CancelOperation(id string) error {
	m.mu.Lock()
	state, exists := m.operations[id]
	cancel := m.cancels[id]
	m.mu.Unlock()

	if !exists {
		return ErrOperationNotFound
	}
	if state.GetStatus() != OperationStatusRunning && state.GetStatus() != OperationStatusPending {
		return ErrOperationNotRunning
	}
	state.Cancel()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (m *Manager) storeOperation(state *OperationState, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[state.ID] = state
	m.cancels[state.ID] = cancel
}

func (m *Manager) removeOperation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.operations, id)
	delete(m.cancels, id)
}

// Stop releases the broadcaster
func (m *Manager) Stop() {
	m.broadcaster.Stop()
}
