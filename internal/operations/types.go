package operations

import (
	"time"
)

// Pipeline step identifiers
const (
	StageIDDownload   = "download"
	StageIDEnigh      = "enigh"
	StageIDEnco       = "enco"
	StageIDCenso      = "censo"
	StageIDInequality = "inequality"
	StageIDExport     = "export"
	StageIDIndicators = "indicators"
)

// Pipeline step names
const (
	StageNameDownload   = "Data Download"
	StageNameEnigh      = "ENIGH Processing"
	StageNameEnco       = "ENCO Processing"
	StageNameCenso      = "Census Processing"
	StageNameInequality = "Inequality Calculation"
	StageNameExport     = "Result Export"
	StageNameIndicators = "Indicators Download"
)

// Keys of the operation config and context
const (
	ContextKeyMode         = "mode"
	ContextKeyEnighYears   = "enigh_years"
	ContextKeyEncoYears    = "enco_years"
	ContextKeyLevels       = "levels"
	ContextKeyObservations = "enigh_observations"
	ContextKeyEncoTables   = "enco_tables"
	ContextKeyResults      = "inequality_results"
	ContextKeyDownloads    = "downloads"
	ContextKeyExported     = "exported_files"
)

// Operation modes
const (
	// ModeFull downloads the archives before processing them.
	ModeFull = "full"
	// ModeOffline processes archives already on disk.
	ModeOffline = "offline"
)

// FullPipeline requests every registered step.
const FullPipeline = "full_pipeline"

// WebSocket event types - using frontend format
const (
	EventTypeOperationStatus  = "operation:status"
	EventTypePipelineProgress = "operation:progress"
	EventTypePipelineComplete = "operation:complete"
	EventTypeOperationError   = "operation:error"
	EventTypeSnapshot         = "operation:snapshot"
)

// Default timeouts
const (
	DefaultStageTimeout      = 30 * time.Minute
	DefaultDownloadTimeout   = 60 * time.Minute
	DefaultIndicatorsTimeout = 10 * time.Minute
)

// ExecutionMode defines how steps are executed
type ExecutionMode string

const (
	ExecutionModeSequential ExecutionMode = "sequential"
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest represents a request to execute an operation
type OperationRequest struct {
	ID         string                 `json:"id"`
	Mode       string                 `json:"mode" validate:"omitempty,oneof=full offline"`
	Steps      []string               `json:"steps,omitempty"`
	EnighYears []int                  `json:"enigh_years,omitempty" validate:"dive,min=2016,max=2100"`
	EncoYears  []int                  `json:"enco_years,omitempty" validate:"dive,min=2016,max=2100"`
	Levels     []string               `json:"levels,omitempty" validate:"dive,oneof=national state municipal"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// OperationResponse represents the response from an operation execution
type OperationResponse struct {
	ID       string                `json:"id"`
	Status   OperationStatusValue  `json:"status"`
	Duration time.Duration         `json:"duration"`
	Steps    map[string]*StepState `json:"steps"`
	Error    string                `json:"error,omitempty"`
}

// OperationType represents an available operation type
type OperationType struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	Dependencies []string              `json:"dependencies"`
	CanRunAlone  bool                  `json:"can_run_alone"`
	Parameters   []ParameterDefinition `json:"parameters"`
}

// ParameterDefinition defines a parameter for an operation type
type ParameterDefinition struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // string, number, select, boolean
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Options     []string    `json:"options,omitempty"`
}
