package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads, e.g.
// LLMUTILS_LLM_MODEL or LLMUTILS_NTHREADS.
const EnvPrefix = "LLMUTILS_"

var (
	// ErrInvalidArguments is returned for unknown or malformed command-line flags.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrValidation is returned when the merged configuration fails validation.
	ErrValidation = errors.New("config validation failed")
)

type option struct {
	name  string
	value any
	usage string
}

// options lists every user-configurable setting with its built-in default.
var options = []option{
	{"llm_provider", "gemini", "LLM provider backend (gemini, vertex)"},
	{"llm_model", "gemini-2.0-flash", "The LLM model"},
	{"llm_max_token", 1000, "Maximum number of tokens"},
	{"llm_temperature", 0.1, "LLM temperature"},
	{"llm_api_key", "", "API key for the gemini provider"},
	{"llm_project", "", "Google Cloud project for the vertex provider"},
	{"llm_location", "us-central1", "Google Cloud location for the vertex provider"},
	{"llm_timeout", 60 * time.Second, "Per-attempt completion timeout"},
	{"llm_requests_per_second", 0.0, "Client-side request rate limit (0 = unlimited)"},
	{"max_attempts", 5, "Maximum number of attempts per completion"},
	{"retry_initial_interval", 500 * time.Millisecond, "First backoff after a transient failure (0 = retry immediately)"},
	{"retry_max_interval", 30 * time.Second, "Upper bound for a single backoff"},
	{"prompt_template", "", "Path to the prompt template rendered for every item"},
	{"system_prompt", "", "Optional system prompt"},
	{"debug", false, "Log LLM calls"},
	{"verbose", false, "Verbose"},
	{"log", "log.yaml", "The run summary file"},
	{"log_level", "info", "Log level (debug, info, warn, error)"},
	{"log_format", "json", "Log format (json, text)"},
	{"input_path", "input.jsonl", "The input dataset file(s), comma separated"},
	{"output_dir", "output_data", "The output dir"},
	{"output_path", "", "Explicit output file (overrides output_dir)"},
	{"override", false, "Whether to override the existing results in the output file"},
	{"nthreads", 1, "Number of concurrent workers"},
	{"id_key", "id", "Identifier field of every item"},
	{"fail_fast", false, "Stop dispatching items after the first failure"},
	{"store_driver", "jsonl", "Record store backend (jsonl, postgres)"},
	{"database_url", "", "PostgreSQL URL for the postgres store"},
	{"status_addr", "", "Listen address of the status server (empty = disabled)"},
}

// Load resolves the configuration from, lowest to highest precedence:
// built-in defaults, LLMUTILS_ environment variables, the YAML file named by
// -c/--config_yaml, and command-line flags. Unknown flags are an error whose
// message includes the flag help.
func Load(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v\n\narguments:\n%s", ErrInvalidArguments, err, fs.FlagUsages())
	}
	if rest := fs.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("%w: unrecognized arguments: %s\n\narguments:\n%s",
			ErrInvalidArguments, strings.Join(rest, " "), fs.FlagUsages())
	}

	v := viper.New()
	for _, opt := range options {
		v.SetDefault(opt.name, opt.value)
		// environment values replace the built-in default, so both YAML and
		// flags still override them
		if env, ok := os.LookupEnv(EnvPrefix + strings.ToUpper(opt.name)); ok {
			v.SetDefault(opt.name, env)
		}
	}

	configFile, err := fs.GetString("config_yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Usage returns the flag help text.
func Usage() string {
	return newFlagSet().FlagUsages()
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("llmbatch", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringP("config_yaml", "c", "", "YAML config file specifying arguments")
	for _, opt := range options {
		switch def := opt.value.(type) {
		case string:
			fs.String(opt.name, def, opt.usage)
		case int:
			fs.Int(opt.name, def, opt.usage)
		case float64:
			fs.Float64(opt.name, def, opt.usage)
		case bool:
			fs.Bool(opt.name, def, opt.usage)
		case time.Duration:
			fs.Duration(opt.name, def, opt.usage)
		}
	}
	return fs
}
