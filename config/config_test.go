package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/auditflow/auditflow/artifact"
)

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "filesystem", cfg.Store.Backend)
	assert.Equal(t, 4, cfg.Executor.MaxConcurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auditflow", cfg.Metrics.Namespace)
}

func TestLoadFromYAMLFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "auditflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: redis
  redis:
    addr: redis.internal:6379
    namespace: compliance
executor:
  max_concurrency: 16
  timeout: 10m
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Store.Redis.Addr)
	assert.Equal(t, "compliance", cfg.Store.Redis.Namespace)
	assert.Equal(t, 16, cfg.Executor.MaxConcurrency)
	assert.Equal(t, 10*time.Minute, cfg.Executor.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep their defaults.
	assert.Equal(t, "auditflow", cfg.Store.Mongo.Database)
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().WithConfigPath("/nonexistent/auditflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auditflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("executor:\n  max_concurrency: 16\n"), 0o644))

	t.Setenv("AUDITFLOW_EXECUTOR_MAX_CONCURRENCY", "32")
	t.Setenv("AUDITFLOW_STORE_BACKEND", "memory")
	t.Setenv("AUDITFLOW_EXECUTOR_TIMEOUT", "90s")
	t.Setenv("AUDITFLOW_LOG_OUTPUT_PATHS", "stderr, /var/log/auditflow.log")
	t.Setenv("AUDITFLOW_TELEMETRY_ENABLED", "true")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 32, cfg.Executor.MaxConcurrency)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 90*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, []string{"stderr", "/var/log/auditflow.log"}, cfg.Log.OutputPaths)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestValidationRejectsBadValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }},
		{"empty filesystem root", func(c *Config) { c.Store.Root = "" }},
		{"negative concurrency", func(c *Config) { c.Executor.MaxConcurrency = -1 }},
		{"sample rate out of range", func(c *Config) { c.Telemetry.SampleRate = 1.5 }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCustomValidatorRuns(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			return assert.AnError
		}).
		Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	t.Parallel()

	memory := StoreConfig{Backend: "memory"}
	store, err := memory.NewStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &artifact.MemoryStore{}, store)

	fs := StoreConfig{Backend: "filesystem", Root: t.TempDir()}
	store, err = fs.NewStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &artifact.FilesystemStore{}, store)

	mr := miniredis.RunT(t)
	rd := StoreConfig{Backend: "redis", Redis: artifact.RedisConfig{Addr: mr.Addr()}}
	store, err = rd.NewStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &artifact.RedisStore{}, store)

	_, err = StoreConfig{Backend: "etcd"}.NewStore(nil)
	assert.Error(t, err)
}

func TestLogConfigBuild(t *testing.T) {
	t.Parallel()

	logger, err := LogConfig{Level: "debug", Format: "json", OutputPaths: []string{"stderr"}}.Build()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = LogConfig{Level: "loud", Format: "json"}.Build()
	assert.Error(t, err)
}
