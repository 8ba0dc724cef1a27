package operations

import (
	"context"

	"github.com/google/uuid"

	"ineqmx/internal/dataset"
	"ineqmx/internal/download"
	"ineqmx/internal/indicators"
	"ineqmx/internal/inequality"
	"ineqmx/internal/tabular"
)

// WebSocketHub interface for sending WebSocket messages
type WebSocketHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}

// ProgressReporter interface for steps that can report progress
type ProgressReporter interface {
	ReportProgress(progress int, message string) error
}

// Downloader fetches dataset archives.
type Downloader interface {
	FetchAll(ctx context.Context, sources []dataset.Source, rawRoot string) ([]*download.Result, error)
}

// IndicatorSource queries the indicators API.
type IndicatorSource interface {
	FetchAreas(ctx context.Context, areas []string) ([]indicators.Row, error)
}

// TablePublisher uploads a result table.
type TablePublisher interface {
	Publish(ctx context.Context, kind dataset.Kind, level dataset.Level, table *tabular.Table) error
}

// ResultStore persists inequality results.
type ResultStore interface {
	Save(ctx context.Context, kind dataset.Kind, level dataset.Level, results []inequality.Result) (uuid.UUID, error)
}

// StageOptions contains optional dependencies for steps
type StageOptions struct {
	WebSocketManager  WebSocketHub
	EnableProgress    bool
	StatusBroadcaster *StatusBroadcaster
}
