// Package config provides the framework configuration: defaults, YAML file
// loading, and environment variable overrides, in that priority order.
package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/auditflow/auditflow/artifact"
)

// Config is the complete framework configuration.
type Config struct {
	// Store selects and configures the artifact store backend.
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Executor configures run concurrency and dispatch pacing.
	Executor ExecutorConfig `yaml:"executor" env:"EXECUTOR"`

	// Log configures the zap logger.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry configures OpenTelemetry export.
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics configures Prometheus metric collection.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// StoreConfig selects the artifact store backend.
type StoreConfig struct {
	// Backend: memory, filesystem, redis, or mongo
	Backend string `yaml:"backend" env:"BACKEND"`
	// Root directory for the filesystem backend
	Root string `yaml:"root" env:"ROOT"`

	Redis artifact.RedisConfig `yaml:"redis" env:"REDIS"`
	Mongo artifact.MongoConfig `yaml:"mongo" env:"MONGO"`
}

// ExecutorConfig configures the DAG executor.
type ExecutorConfig struct {
	// Maximum concurrent artifact executions per run
	MaxConcurrency int `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	// Artifact dispatch rate limit; zero disables pacing
	DispatchPerSecond float64 `yaml:"dispatch_per_second" env:"DISPATCH_PER_SECOND"`
	// Default run timeout; zero means no timeout
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console
	Format string `yaml:"format" env:"FORMAT"`
	// Output paths, e.g. stderr or file paths
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// Annotate entries with the calling site
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// Attach stacktraces at error level
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP gRPC endpoint, e.g. localhost:4317
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"SERVICE_NAME"`
	// Trace sampling ratio in [0, 1]
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig configures Prometheus collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Metric namespace prefix
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// DefaultConfig returns the configuration used when no file or environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Store:     DefaultStoreConfig(),
		Executor:  DefaultExecutorConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultStoreConfig returns the default store configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend: "filesystem",
		Root:    "./runs",
		Redis:   artifact.DefaultRedisConfig(),
		Mongo:   artifact.DefaultMongoConfig(),
	}
}

// DefaultExecutorConfig returns the default executor configuration.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrency: 4,
	}
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	}
}

// DefaultTelemetryConfig returns the default telemetry configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "auditflow",
		SampleRate:   1.0,
	}
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "auditflow",
	}
}

// Validate checks the configuration for values no component can accept.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Backend {
	case "memory", "filesystem", "redis", "mongo":
	default:
		errs = append(errs, fmt.Sprintf("unknown store backend %q", c.Store.Backend))
	}
	if c.Store.Backend == "filesystem" && c.Store.Root == "" {
		errs = append(errs, "filesystem store requires a root directory")
	}
	if c.Executor.MaxConcurrency < 0 {
		errs = append(errs, "max_concurrency must not be negative")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// NewStore builds the configured artifact store backend.
func (s StoreConfig) NewStore(logger *zap.Logger) (artifact.Store, error) {
	switch s.Backend {
	case "memory":
		return artifact.NewMemoryStore(), nil
	case "filesystem":
		return artifact.NewFilesystemStore(s.Root, logger), nil
	case "redis":
		return artifact.NewRedisStore(s.Redis, logger)
	case "mongo":
		return artifact.NewMongoStore(s.Mongo, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", s.Backend)
	}
}

// Build constructs a zap logger from the logging configuration.
func (l LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	encoder := zap.NewProductionEncoderConfig()
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	if l.Format == "console" {
		encoder.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputs := l.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          l.Format,
		EncoderConfig:     encoder,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !l.EnableCaller,
		DisableStacktrace: !l.EnableStacktrace,
	}
	return cfg.Build()
}
