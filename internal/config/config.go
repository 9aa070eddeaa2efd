package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration. It is loaded once per process
// and passed explicitly to every component that needs it.
//
// Keys are flat (llm_model, nthreads, ...) so the same names work as YAML
// keys, command-line flags and LLMUTILS_-prefixed environment variables.
type Config struct {
	LLMConfig    `mapstructure:",squash"`
	BatchConfig  `mapstructure:",squash"`
	LogConfig    `mapstructure:",squash"`
	StoreConfig  `mapstructure:",squash"`
	ServerConfig `mapstructure:",squash"`
}

// LLMConfig contains the remote completion and retry settings.
type LLMConfig struct {
	Provider    string  `mapstructure:"llm_provider" validate:"required,oneof=gemini vertex"`
	Model       string  `mapstructure:"llm_model" validate:"required"`
	MaxTokens   int     `mapstructure:"llm_max_token" validate:"gt=0"`
	Temperature float64 `mapstructure:"llm_temperature" validate:"gte=0,lte=2"`
	APIKey      string  `mapstructure:"llm_api_key"`
	// Project and Location are only used by the vertex provider.
	Project  string        `mapstructure:"llm_project" validate:"required_if=Provider vertex"`
	Location string        `mapstructure:"llm_location"`
	Timeout  time.Duration `mapstructure:"llm_timeout" validate:"gt=0"`
	// RequestsPerSecond caps outgoing calls across all workers; 0 disables it.
	RequestsPerSecond float64 `mapstructure:"llm_requests_per_second" validate:"gte=0"`

	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1"`
	// RetryInitialInterval of zero retries immediately after a transient failure.
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval" validate:"gte=0"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval" validate:"gte=0"`

	PromptTemplate string `mapstructure:"prompt_template"`
	SystemPrompt   string `mapstructure:"system_prompt"`

	// Debug logs every LLM request and response.
	Debug bool `mapstructure:"debug"`
}

// BatchConfig contains dataset, output and scheduling settings.
type BatchConfig struct {
	InputPath string `mapstructure:"input_path" validate:"required"`
	OutputDir string `mapstructure:"output_dir" validate:"required"`
	// OutputPath overrides the path derived from OutputDir and InputPath.
	OutputPath string `mapstructure:"output_path"`
	// Override discards existing output instead of resuming from it.
	Override bool   `mapstructure:"override"`
	NThreads int    `mapstructure:"nthreads" validate:"gte=0"`
	IDKey    string `mapstructure:"id_key" validate:"required"`
	FailFast bool   `mapstructure:"fail_fast"`
	// Log is where the YAML run summary is written; empty disables it.
	Log string `mapstructure:"log"`
}

// LogConfig contains the structured logging settings.
type LogConfig struct {
	Level   string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Format  string `mapstructure:"log_format" validate:"omitempty,oneof=json text"`
	Verbose bool   `mapstructure:"verbose"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver      string `mapstructure:"store_driver" validate:"required,oneof=jsonl postgres"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Driver postgres"`
}

// ServerConfig contains the optional status server settings.
type ServerConfig struct {
	// StatusAddr is the listen address of the progress/metrics endpoint;
	// empty disables the server.
	StatusAddr string `mapstructure:"status_addr"`
}

// OutputFile returns the output log path: OutputPath when set, otherwise
// <output_dir>/<input basename without extensions>.jsonl.
func (c BatchConfig) OutputFile() string {
	if c.OutputPath != "" {
		return c.OutputPath
	}
	base := filepath.Base(c.InputPath)
	for _, ext := range []string{".gz", ".jsonl", ".json"} {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "output"
	}
	return filepath.Join(c.OutputDir, base+".jsonl")
}
