package operations

import (
	"time"

	"ineqmx/internal/config"
)

// Config represents the operation execution configuration
type Config struct {
	ExecutionMode ExecutionMode `json:"execution_mode"`

	// Per-step timeouts
	StageTimeouts map[string]time.Duration `json:"stage_timeouts"`

	// DefaultTimeout applies to steps without an explicit timeout
	DefaultTimeout time.Duration `json:"default_timeout"`

	RetryConfig RetryConfig `json:"retry_config"`

	// Whether to continue with independent steps after a failure
	ContinueOnError bool `json:"continue_on_error"`

	// ManifestFile, when set, receives the data manifest after every operation
	ManifestFile string `json:"manifest_file,omitempty"`
}

// NewConfig returns the default operation configuration
func NewConfig() *Config {
	return &Config{
		ExecutionMode: ExecutionModeSequential,
		StageTimeouts: map[string]time.Duration{
			StageIDDownload:   DefaultDownloadTimeout,
			StageIDIndicators: DefaultIndicatorsTimeout,
		},
		DefaultTimeout: DefaultStageTimeout,
		RetryConfig:    NewRetryConfig(),
	}
}

// NewConfigFromPipeline derives the operation configuration from the
// application pipeline settings.
func NewConfigFromPipeline(p config.PipelineConfig) *Config {
	cfg := NewConfig()
	if p.StepTimeout > 0 {
		cfg.DefaultTimeout = p.StepTimeout
	}
	cfg.ContinueOnError = p.ContinueOnError
	cfg.RetryConfig.MaxAttempts = p.MaxRetries + 1
	if p.RetryDelay > 0 {
		cfg.RetryConfig.InitialDelay = p.RetryDelay
		cfg.RetryConfig.MaxDelay = max(cfg.RetryConfig.MaxDelay, p.RetryDelay*8)
	}
	return cfg
}

// GetStageTimeout returns the timeout for a specific step
func (c *Config) GetStageTimeout(stageID string) time.Duration {
	if timeout, ok := c.StageTimeouts[stageID]; ok && timeout > 0 {
		return timeout
	}
	if c.DefaultTimeout > 0 {
		return c.DefaultTimeout
	}
	return DefaultStageTimeout
}

// SetStageTimeout sets the timeout for a specific step
func (c *Config) SetStageTimeout(stageID string, timeout time.Duration) {
	if c.StageTimeouts == nil {
		c.StageTimeouts = make(map[string]time.Duration)
	}
	c.StageTimeouts[stageID] = timeout
}

// ConfigBuilder provides a fluent interface for building operation configurations
type ConfigBuilder struct {
	config *Config
}

// NewConfigBuilder creates a new configuration builder
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: NewConfig(),
	}
}

// WithStageTimeout sets a step-specific timeout
func (b *ConfigBuilder) WithStageTimeout(stageID string, timeout time.Duration) *ConfigBuilder {
	b.config.SetStageTimeout(stageID, timeout)
	return b
}

// WithRetryConfig sets the retry configuration
func (b *ConfigBuilder) WithRetryConfig(config RetryConfig) *ConfigBuilder {
	b.config.RetryConfig = config
	return b
}

// WithContinueOnError sets whether to continue on errors
func (b *ConfigBuilder) WithContinueOnError(continueOnError bool) *ConfigBuilder {
	b.config.ContinueOnError = continueOnError
	return b
}

// WithManifestFile persists the data manifest after each operation
func (b *ConfigBuilder) WithManifestFile(path string) *ConfigBuilder {
	b.config.ManifestFile = path
	return b
}

// Build returns the built configuration
func (b *ConfigBuilder) Build() *Config {
	return b.config
}
