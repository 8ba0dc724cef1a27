package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"ineqmx/internal/files"
)

// Data types recorded in the manifest
const (
	DataTypeRawArchives = "raw_archives"
	DataTypeEnighTidy   = "enigh_tidy"
	DataTypeEncoTidy    = "enco_tidy"
	DataTypeCensoTidy   = "censo_tidy"
	DataTypeResults     = "inequality_results"
	DataTypeIndicators  = "indicators"
)

// PipelineManifest tracks the data available to an operation and the steps
// it has executed
type PipelineManifest struct {
	mu sync.RWMutex

	ID          string    `json:"id"`
	OperationID string    `json:"operation_id"`
	StartTime   time.Time `json:"start_time"`
	Mode        string    `json:"mode"`

	AvailableData map[string]*DataInfo `json:"available_data"`

	// PlannedStages is the number of steps in the operation
	PlannedStages   int              `json:"planned_stages"`
	CompletedStages []StageExecution `json:"completed_stages"`

	Status      string    `json:"status"` // pending, running, completed, failed
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
}

// DataInfo tracks information about available data
type DataInfo struct {
	Type        string    `json:"type"`
	Location    string    `json:"location"`
	FileCount   int       `json:"file_count"`
	FilePattern string    `json:"file_pattern"`
	TotalSize   int64     `json:"total_size"`
	Files       []string  `json:"files"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// StageExecution tracks the execution of a single step
type StageExecution struct {
	StageID    string                 `json:"stage_id"`
	StageName  string                 `json:"stage_name"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Duration   string                 `json:"duration"`
	Status     string                 `json:"status"`
	OutputData []string               `json:"output_data"`
	Error      string                 `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewPipelineManifest creates a new pipeline manifest
func NewPipelineManifest(operationID, mode string) *PipelineManifest {
	now := time.Now()
	return &PipelineManifest{
		ID:            "manifest-" + operationID,
		OperationID:   operationID,
		StartTime:     now,
		Mode:          mode,
		AvailableData: make(map[string]*DataInfo),
		Status:        "pending",
		LastUpdated:   now,
	}
}

// HasData checks if a specific type of data is available
func (m *PipelineManifest) HasData(dataType string) bool {
	_, exists := m.GetData(dataType)
	return exists
}

// GetData returns information about available data
func (m *PipelineManifest) GetData(dataType string) (*DataInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.AvailableData[dataType]
	return data, exists
}

// AddData records newly available data
func (m *PipelineManifest) AddData(dataType string, info *DataInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info.Type = dataType
	info.CreatedAt = time.Now()
	m.AvailableData[dataType] = info
	m.LastUpdated = info.CreatedAt
}

// SetStatus updates the overall status
func (m *PipelineManifest) SetStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = status
	m.LastUpdated = time.Now()
}

// SetPlannedStages records how many steps the operation runs
func (m *PipelineManifest) SetPlannedStages(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlannedStages = n
}

func (m *PipelineManifest) execution(stageID string) *StageExecution {
	for i := range m.CompletedStages {
		if m.CompletedStages[i].StageID == stageID {
			return &m.CompletedStages[i]
		}
	}
	return nil
}

// RecordStageStart records the start of a step execution
func (m *PipelineManifest) RecordStageStart(stageID, stageName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if exec := m.execution(stageID); exec != nil {
		// retry
		exec.StartTime = now
		exec.Status = "running"
		exec.Error = ""
	} else {
		m.CompletedStages = append(m.CompletedStages, StageExecution{
			StageID:   stageID,
			StageName: stageName,
			StartTime: now,
			Status:    "running",
		})
	}
	m.Status = "running"
	m.LastUpdated = now
}

// RecordStageCompletion records the completion of a step
func (m *PipelineManifest) RecordStageCompletion(stageID string, outputData []string, metadata map[string]interface{}) {
	m.finish(stageID, "completed", outputData, metadata, "")
}

// RecordStageSkipped records a step that did not run
func (m *PipelineManifest) RecordStageSkipped(stageID, stageName, reason string) {
	m.mu.Lock()
	if m.execution(stageID) == nil {
		m.CompletedStages = append(m.CompletedStages, StageExecution{
			StageID:   stageID,
			StageName: stageName,
			StartTime: time.Now(),
		})
	}
	m.mu.Unlock()
	m.finish(stageID, "skipped", nil, nil, reason)
}

// RecordStageFailure records a step failure
func (m *PipelineManifest) RecordStageFailure(stageID string, err error) {
	m.finish(stageID, "failed", nil, nil, err.Error())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = "failed"
	m.Error = fmt.Sprintf("step %s failed: %v", stageID, err)
}

func (m *PipelineManifest) finish(stageID, status string, outputs []string, metadata map[string]interface{}, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if exec := m.execution(stageID); exec != nil {
		exec.EndTime = now
		exec.Duration = now.Sub(exec.StartTime).String()
		exec.Status = status
		exec.OutputData = outputs
		exec.Metadata = metadata
		exec.Error = errMsg
	}
	m.LastUpdated = now
}

// IsStageCompleted checks if a step has been completed
func (m *PipelineManifest) IsStageCompleted(stageID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	exec := m.execution(stageID)
	return exec != nil && exec.Status == "completed"
}

// ScanDataDirectory records the files under location matching pattern.
// A pattern starting with "**/" matches file names at any depth; otherwise
// it is a glob relative to location, e.g. "*/*.csv". Locations without
// matching files are not recorded.
func (m *PipelineManifest) ScanDataDirectory(dataType, location, pattern string) error {
	found, err := files.Find(location, pattern)
	if err != nil {
		return fmt.Errorf("failed to scan directory: %w", err)
	}
	if len(found) == 0 {
		return nil
	}

	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.Rel
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.AvailableData[dataType] = &DataInfo{
		Type:        dataType,
		Location:    location,
		FileCount:   len(names),
		FilePattern: pattern,
		TotalSize:   files.TotalSize(found),
		Files:       names,
		CreatedAt:   time.Now(),
	}
	m.LastUpdated = time.Now()
	return nil
}

// SaveToFile writes the manifest as indented JSON
func (m *PipelineManifest) SaveToFile(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := files.WriteFile(path, data); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	return nil
}

// LoadManifestFromFile loads a manifest from a JSON file
func LoadManifestFromFile(path string) (*PipelineManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	manifest := &PipelineManifest{}
	if err := json.Unmarshal(data, manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	if manifest.AvailableData == nil {
		manifest.AvailableData = make(map[string]*DataInfo)
	}
	return manifest, nil
}

// Clone creates a deep copy of the manifest
func (m *PipelineManifest) Clone() *PipelineManifest {
	m.mu.RLock()
	data, err := json.Marshal(m)
	m.mu.RUnlock()

	clone := &PipelineManifest{AvailableData: make(map[string]*DataInfo)}
	if err == nil {
		_ = json.Unmarshal(data, clone)
	}
	return clone
}

// GetProgress returns the share of planned steps that finished
func (m *PipelineManifest) GetProgress() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.PlannedStages
	if total == 0 {
		total = len(m.CompletedStages)
	}
	if total == 0 {
		return 0
	}
	done := 0
	for _, stage := range m.CompletedStages {
		if stage.Status == "completed" || stage.Status == "skipped" {
			done++
		}
	}
	return min(100, done*100/total)
}
