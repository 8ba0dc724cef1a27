package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ineqmx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		file        string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults without file or env",
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, []string{"http://localhost:8080"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, 4, cfg.Download.Workers)
				assert.Equal(t, 3, cfg.Download.Retries)
				assert.Equal(t, []int{2018, 2020, 2022}, cfg.Pipeline.EnighYears)
				assert.True(t, cfg.Pipeline.IncludeMeanColumn)
				assert.False(t, cfg.Store.Enabled())
				assert.False(t, cfg.Publish.Enabled())
			},
		},
		{
			name: "environment overrides defaults",
			env: map[string]string{
				"INEQMX_SERVER_PORT":          "9090",
				"INEQMX_DOWNLOAD_WORKERS":     "8",
				"INEQMX_PIPELINE_ENIGH_YEARS": "2020,2022",
				"INEQMX_LOGGING_LEVEL":        "debug",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 8, cfg.Download.Workers)
				assert.Equal(t, []int{2020, 2022}, cfg.Pipeline.EnighYears)
				assert.Equal(t, "debug", cfg.Logging.Level)
			},
		},
		{
			name: "file overrides defaults",
			file: `
server:
  port: 7070
paths:
  data_dir: /srv/ineqmx/data
pipeline:
  enigh_years: [2022]
  write_xlsx: false
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 7070, cfg.Server.Port)
				assert.Equal(t, "/srv/ineqmx/data", cfg.Paths.DataDir)
				assert.Equal(t, []int{2022}, cfg.Pipeline.EnighYears)
				assert.False(t, cfg.Pipeline.WriteXLSX)
				assert.Equal(t, 4, cfg.Download.Workers)
			},
		},
		{
			name: "environment wins over file",
			file: `
server:
  port: 7070
download:
  retries: 5
`,
			env: map[string]string{"INEQMX_SERVER_PORT": "6060"},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 6060, cfg.Server.Port)
				assert.Equal(t, 5, cfg.Download.Retries)
			},
		},
		{
			name:    "invalid port",
			env:     map[string]string{"INEQMX_SERVER_PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			env:     map[string]string{"INEQMX_LOGGING_LEVEL": "verbose"},
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			file:    "server: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("INEQMX_CONFIG", "")
			if tt.file != "" {
				t.Setenv("INEQMX_CONFIG", writeConfigFile(t, tt.file))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.validateCfg(t, cfg)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("normalizes logging", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Output = "console"
		cfg.Logging.Level = "warning"
		cfg.Logging.Format = ""

		require.NoError(t, cfg.Validate())
		assert.Equal(t, "stdout", cfg.Logging.Output)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
	})

	t.Run("text format", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Format = "text"
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "text", cfg.Logging.Format)

		cfg.Logging.Format = "xml"
		assert.Error(t, cfg.Validate())
	})

	t.Run("file output needs a path", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Output = "file"
		cfg.Logging.FilePath = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unsafe table names", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Table = "results; drop table x"
		assert.Error(t, cfg.Validate())
	})

	t.Run("requires at least one enigh year", func(t *testing.T) {
		cfg := Default()
		cfg.Pipeline.EnighYears = nil
		assert.Error(t, cfg.Validate())
	})

	t.Run("enabled helpers", func(t *testing.T) {
		cfg := Default()
		cfg.Store.DSN = "postgres://localhost/ineqmx"
		cfg.Publish.SpreadsheetID = "sheet"
		cfg.Publish.CredentialsFile = "creds.json"
		assert.True(t, cfg.Store.Enabled())
		assert.True(t, cfg.Publish.Enabled())
	})
}

func TestPaths(t *testing.T) {
	base := t.TempDir()
	paths, err := NewPaths(filepath.Join(base, "data"), filepath.Join(base, "logs"))
	require.NoError(t, err)

	require.NoError(t, paths.EnsureDirectories())
	for _, dir := range []string{paths.RawDir, paths.InterimDir, paths.ProcessedDir, paths.ExternalDir, paths.ReportsDir, paths.LogsDir} {
		assert.DirExists(t, dir)
	}

	assert.Equal(t, filepath.Join(base, "data", "raw", "enigh", "2022"), paths.Raw("enigh", 2022))
	assert.Equal(t, filepath.Join(base, "data", "interim", "enco", "2019"), paths.Interim("enco", 2019))
	assert.Equal(t, filepath.Join(base, "data", "processed", "enigh"), paths.Processed("enigh"))
	assert.Equal(t, filepath.Join(base, "data", "external", "gini.csv"), paths.External("gini.csv"))
	assert.True(t, FileExists(paths.RawDir))
	assert.False(t, FileExists(filepath.Join(base, "missing")))
}

func TestResolvePathsMakesRelativeDirsAbsolute(t *testing.T) {
	cfg := Default()
	paths, err := cfg.ResolvePaths()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(paths.DataDir))
	assert.True(t, filepath.IsAbs(paths.LogsDir))
	assert.Equal(t, "raw", filepath.Base(paths.RawDir))
}
