// Package config provides configuration types and defaults for crabitat.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/crabitat/crabitat/internal/log"
	"github.com/crabitat/crabitat/internal/orchestration/tracing"
)

// Config holds all configuration options for crabitat.
type Config struct {
	Listen    ListenConfig    `mapstructure:"listen"`
	Store     StoreConfig     `mapstructure:"store"`
	Workflows WorkflowsConfig `mapstructure:"workflows"`
	Poller    PollerConfig    `mapstructure:"poller"`
	Forge     ForgeConfig     `mapstructure:"forge"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ListenConfig holds the daemon's listen settings.
type ListenConfig struct {
	Port int `mapstructure:"port"`
}

// Addr returns the listen address for the configured port.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("localhost:%d", l.Port)
}

// StoreConfig locates the SQLite store.
type StoreConfig struct {
	// Path is the database file. Relative paths resolve against the
	// working directory. Default: "crabitat.db".
	Path string `mapstructure:"path"`
}

// WorkflowsConfig locates user workflow manifests.
type WorkflowsConfig struct {
	// Dir holds *.yaml manifests merged over the built-in workflows.
	// Default: "workflows".
	Dir string `mapstructure:"dir"`
}

// PollerConfig drives the merge-wait PR poller.
type PollerConfig struct {
	// Interval between PR status sweeps. Default: 60s.
	Interval time.Duration `mapstructure:"interval"`
}

// ForgeConfig holds forge (GitHub) access settings.
type ForgeConfig struct {
	// TokenEnv names the environment variable holding the API token.
	// Default: "GITHUB_TOKEN". An empty token disables forge features.
	TokenEnv string `mapstructure:"token_env"`

	// BaseURL overrides the API endpoint, e.g. for GitHub Enterprise.
	BaseURL string `mapstructure:"base_url"`
}

// Token reads the forge token from the configured environment variable.
func (f ForgeConfig) Token() string {
	if f.TokenEnv == "" {
		return ""
	}
	return os.Getenv(f.TokenEnv)
}

// LogConfig holds logging options.
type LogConfig struct {
	// Level is the minimum severity: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`

	// Format selects the line encoding: "text" (default) or "json".
	Format string `mapstructure:"format"`
}

// MinLevel maps the configured level string onto a log.Level.
func (l LogConfig) MinLevel() log.Level {
	switch l.Level {
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/crabitat/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// 1.0 = all traces, 0.1 = 10% of traces
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`

	// ServiceName identifies this process in exported traces.
	// Default: "crabitat"
	ServiceName string `mapstructure:"service_name"`
}

// TracerConfig converts to the tracing package's config, filling the
// file path default when the file exporter is selected without one.
func (t TracingConfig) TracerConfig() tracing.Config {
	cfg := tracing.Config{
		Enabled:      t.Enabled,
		Exporter:     t.Exporter,
		FilePath:     t.FilePath,
		OTLPEndpoint: t.OTLPEndpoint,
		SampleRate:   t.SampleRate,
		ServiceName:  t.ServiceName,
	}
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultTracesFilePath()
	}
	return cfg
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/crabitat/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "crabitat", "traces", "traces.jsonl")
}

// DefaultConfigPath is where a starter config is written when none exists.
const DefaultConfigPath = ".crabitat/crabitat.yaml"

// UserConfigDir returns ~/.config/crabitat, the fallback config location.
// Returns empty string if the home dir is unavailable.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "crabitat")
}

// Validate checks the whole configuration for errors.
func Validate(cfg Config) error {
	if cfg.Listen.Port < 1 || cfg.Listen.Port > 65535 {
		return fmt.Errorf("listen.port must be between 1 and 65535, got %d", cfg.Listen.Port)
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if cfg.Poller.Interval <= 0 {
		return fmt.Errorf("poller.interval must be positive, got %v", cfg.Poller.Interval)
	}
	if err := ValidateLog(cfg.Log); err != nil {
		return err
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateLog checks logging configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateLog(lc LogConfig) error {
	switch lc.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", lc.Level)
	}
	switch lc.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", lc.Format)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tc TracingConfig) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}

	// Only validate endpoint requirements when tracing is enabled. The
	// file exporter falls back to DefaultTracesFilePath.
	if tc.Enabled && tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
		return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
	}

	return nil
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Listen:    ListenConfig{Port: 8800},
		Store:     StoreConfig{Path: "crabitat.db"},
		Workflows: WorkflowsConfig{Dir: "workflows"},
		Poller:    PollerConfig{Interval: 60 * time.Second},
		Forge:     ForgeConfig{TokenEnv: "GITHUB_TOKEN"},
		Log:       LogConfig{Level: "info", Format: "text"},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
			ServiceName:  "crabitat",
		},
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Crabitat Configuration

# Control plane listen settings
listen:
  port: 8800

# SQLite store for colonies, crabs, missions, tasks, and runs.
# Relative paths resolve against the working directory.
store:
  path: crabitat.db

# Directory of user workflow manifests (*.yaml).
# Manifests here are merged over the built-in workflows; a manifest with
# a built-in's name replaces it.
workflows:
  dir: workflows

# Merge-wait poller for missions parked on an open pull request
poller:
  interval: 60s

# Forge (GitHub) access. The token is read from the named environment
# variable; without a token, issue listing and PR polling are disabled.
forge:
  token_env: GITHUB_TOKEN
  # For GitHub Enterprise, point at its v3 API root:
  # base_url: https://github.example.com/api/v3

# Logging. Any crabitat process started with --debug (or CRABITAT_DEBUG=1)
# writes a debug log file; in the watch console, l shows its stream live.
log:
  level: info   # debug, info, warn, error
  format: text  # text or json

# Distributed tracing for request flows through the control plane
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/crabitat/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
#   service_name: crabitat         # Service name attached to exported spans
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	// Create parent directory if needed
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write the template
	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
