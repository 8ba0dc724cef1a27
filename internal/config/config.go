package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "INEQMX"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	Download   DownloadConfig   `yaml:"download" envconfig:"DOWNLOAD"`
	Pipeline   PipelineConfig   `yaml:"pipeline" envconfig:"PIPELINE"`
	Indicators IndicatorsConfig `yaml:"indicators" envconfig:"INDICATORS"`
	Publish    PublishConfig    `yaml:"publish" envconfig:"PUBLISH"`
	Store      StoreConfig      `yaml:"store" envconfig:"STORE"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" validate:"min=1"`
	ResultCacheTTL  time.Duration `yaml:"result_cache_ttl" envconfig:"RESULT_CACHE_TTL"`
	// RateLimitRPS of zero disables the per-client rate limiter.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" validate:"min=0"`
	RateLimitBurst int     `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" validate:"min=0"`
	QueueWorkers   int     `yaml:"queue_workers" envconfig:"QUEUE_WORKERS" validate:"min=0,max=8"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format      string `yaml:"format" envconfig:"FORMAT" validate:"omitempty,oneof=json text"`
	Output      string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout console file both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
	CatalogFile  string `yaml:"catalog_file" envconfig:"CATALOG_FILE"`
	ManifestFile string `yaml:"manifest_file" envconfig:"MANIFEST_FILE"`
}

// DownloadConfig controls archive retrieval from INEGI
type DownloadConfig struct {
	Workers           int           `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=32"`
	Retries           int           `yaml:"retries" envconfig:"RETRIES" validate:"min=0,max=10"`
	BackoffBase       time.Duration `yaml:"backoff_base" envconfig:"BACKOFF_BASE"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	UserAgent         string        `yaml:"user_agent" envconfig:"USER_AGENT" validate:"required"`
	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND" validate:"gt=0"`
	Burst             int           `yaml:"burst" envconfig:"BURST" validate:"min=1"`
	CleanBeforeFetch  bool          `yaml:"clean_before_fetch" envconfig:"CLEAN_BEFORE_FETCH"`
}

// PipelineConfig selects what the pipeline processes and how it is exported
type PipelineConfig struct {
	EnighYears        []int         `yaml:"enigh_years" envconfig:"ENIGH_YEARS" validate:"min=1,dive,min=2016,max=2100"`
	EncoYears         []int         `yaml:"enco_years" envconfig:"ENCO_YEARS" validate:"dive,min=2016,max=2100"`
	StepTimeout       time.Duration `yaml:"step_timeout" envconfig:"STEP_TIMEOUT" validate:"gt=0"`
	MaxRetries        int           `yaml:"max_retries" envconfig:"MAX_RETRIES" validate:"min=0"`
	RetryDelay        time.Duration `yaml:"retry_delay" envconfig:"RETRY_DELAY"`
	ContinueOnError   bool          `yaml:"continue_on_error" envconfig:"CONTINUE_ON_ERROR"`
	IncludeMeanColumn bool          `yaml:"include_mean_column" envconfig:"INCLUDE_MEAN_COLUMN"`
	WriteXLSX         bool          `yaml:"write_xlsx" envconfig:"WRITE_XLSX"`
	Precision         int32         `yaml:"precision" envconfig:"PRECISION" validate:"min=0,max=12"`
	WriteBOM          bool          `yaml:"write_bom" envconfig:"WRITE_BOM"`
	MinMunicipalObs   int           `yaml:"min_municipal_observations" envconfig:"MIN_MUNICIPAL_OBSERVATIONS" validate:"min=0"`
}

// IndicatorsConfig configures the INEGI indicators API client
type IndicatorsConfig struct {
	BaseURL  string   `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	Token    string   `yaml:"token" envconfig:"TOKEN"`
	IDs      []string `yaml:"ids" envconfig:"IDS"`
	Language string   `yaml:"language" envconfig:"LANGUAGE" validate:"oneof=es en"`
	Source   string   `yaml:"source" envconfig:"SOURCE" validate:"oneof=BIE BISE"`
	Version  string   `yaml:"version" envconfig:"VERSION"`
}

// PublishConfig configures the optional Google Sheets publisher
type PublishConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id" envconfig:"SPREADSHEET_ID"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	SheetName       string `yaml:"sheet_name" envconfig:"SHEET_NAME"`
}

// Enabled reports whether publishing to Google Sheets is configured.
func (p PublishConfig) Enabled() bool {
	return p.SpreadsheetID != "" && p.CredentialsFile != ""
}

// StoreConfig configures the optional Postgres results sink
type StoreConfig struct {
	DSN   string `yaml:"dsn" envconfig:"DSN"`
	Table string `yaml:"table" envconfig:"TABLE"`
}

// Enabled reports whether results are also written to Postgres.
func (s StoreConfig) Enabled() bool {
	return s.DSN != ""
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
//
// The YAML file is taken from INEQMX_CONFIG when set, otherwise from the first
// existing candidate location.
func Load() (*Config, error) {
	cfg := Default()

	if configFile := getConfigFilePath(); configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file at filePath onto cfg. Keys absent from the
// file keep their current value.
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the configuration and normalizes logging settings.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "console" {
		c.Logging.Output = "stdout"
	}
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	if !tableName.MatchString(c.Store.Table) {
		return fmt.Errorf("invalid store table name: %q", c.Store.Table)
	}
	if c.Logging.Output != "stdout" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging output %q requires a file path", c.Logging.Output)
	}

	return nil
}

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG"); explicit != "" {
		return explicit
	}

	locations := []string{
		"ineqmx.yaml",
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:8080"},
			ResultCacheTTL:  30 * time.Minute,
			RateLimitRPS:    20,
			RateLimitBurst:  40,
			QueueWorkers:    1,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/ineqmx.log",
		},
		Paths: PathsConfig{
			DataDir: "data",
			LogsDir: "logs",
		},
		Download: DownloadConfig{
			Workers:           4,
			Retries:           3,
			BackoffBase:       time.Second,
			Timeout:           10 * time.Minute,
			UserAgent:         DefaultUserAgent,
			RequestsPerSecond: 2,
			Burst:             4,
			CleanBeforeFetch:  true,
		},
		Pipeline: PipelineConfig{
			EnighYears:        []int{2018, 2020, 2022},
			EncoYears:         []int{2018, 2020, 2022},
			StepTimeout:       30 * time.Minute,
			MaxRetries:        2,
			RetryDelay:        2 * time.Second,
			IncludeMeanColumn: true,
			WriteXLSX:         true,
			Precision:         4,
			MinMunicipalObs:   10,
		},
		Indicators: IndicatorsConfig{
			BaseURL: "https://www.inegi.org.mx/app/api/indicadores/desarrolladores/jsonxml/INDICATOR",
			IDs: []string{
				"6207048662", "6207048663", "6207048664", "6207048665", "6207048666",
				"6207048667", "6207048668", "6207048669", "6207048670", "6207048671",
			},
			Language: "es",
			Source:   "BISE",
			Version:  "2.0",
		},
		Publish: PublishConfig{
			SheetName: "gini",
		},
		Store: StoreConfig{
			Table: "inequality_results",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}

// DefaultUserAgent is sent with every download; INEGI rejects the Go default.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
