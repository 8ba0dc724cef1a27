package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// Paths contains every directory the pipeline reads from or writes to.
//
//	data/
//	  raw/<dataset>/<year>/        extracted INEGI archives
//	  interim/<dataset>/<year>/    cleaned tables
//	  processed/<dataset>/         tidy tables ready for analysis
//	  external/                    inequality tables and indicators
//	  reports/                     xlsx workbooks and metadata
//	logs/
type Paths struct {
	DataDir      string
	RawDir       string
	InterimDir   string
	ProcessedDir string
	ExternalDir  string
	ReportsDir   string
	LogsDir      string
}

// NewPaths lays out the directory tree under dataDir. Relative directories are
// resolved against the working directory.
func NewPaths(dataDir, logsDir string) (*Paths, error) {
	data, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir %s: %w", dataDir, err)
	}
	logs, err := filepath.Abs(logsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve logs dir %s: %w", logsDir, err)
	}

	return &Paths{
		DataDir:      data,
		RawDir:       filepath.Join(data, "raw"),
		InterimDir:   filepath.Join(data, "interim"),
		ProcessedDir: filepath.Join(data, "processed"),
		ExternalDir:  filepath.Join(data, "external"),
		ReportsDir:   filepath.Join(data, "reports"),
		LogsDir:      logs,
	}, nil
}

// ResolvePaths resolves the configured directories.
func (c *Config) ResolvePaths() (*Paths, error) {
	return NewPaths(c.Paths.DataDir, c.Paths.LogsDir)
}

// EnsureDirectories creates all base directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.RawDir,
		p.InterimDir,
		p.ProcessedDir,
		p.ExternalDir,
		p.ReportsDir,
		p.LogsDir,
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		slog.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// Raw returns the directory holding the extracted archives of dataset for year.
func (p *Paths) Raw(dataset string, year int) string {
	return filepath.Join(p.RawDir, dataset, strconv.Itoa(year))
}

// Interim returns the directory holding cleaned tables of dataset for year.
func (p *Paths) Interim(dataset string, year int) string {
	return filepath.Join(p.InterimDir, dataset, strconv.Itoa(year))
}

// Processed returns the directory holding tidy tables of dataset.
func (p *Paths) Processed(dataset string) string {
	return filepath.Join(p.ProcessedDir, dataset)
}

// External returns the path of a result table.
func (p *Paths) External(filename string) string {
	return filepath.Join(p.ExternalDir, filename)
}

// Report returns the path of a report file.
func (p *Paths) Report(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// Log returns the path of a log file.
func (p *Paths) Log(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// LogPathResolution logs the resolved directory tree
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("data", p.DataDir),
			slog.String("raw", p.RawDir),
			slog.String("interim", p.InterimDir),
			slog.String("processed", p.ProcessedDir),
			slog.String("external", p.ExternalDir),
			slog.String("reports", p.ReportsDir),
			slog.String("logs", p.LogsDir),
		))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
