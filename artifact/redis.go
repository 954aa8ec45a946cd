package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/auditflow/auditflow/types"
)

// RedisConfig configures the Redis artifact store backend.
type RedisConfig struct {
	// Redis address
	Addr string `yaml:"addr" json:"addr"`
	// Password, empty for none
	Password string `yaml:"password" json:"password"`
	// Database number
	DB int `yaml:"db" json:"db"`
	// Key namespace prefix; defaults to "auditflow"
	Namespace string `yaml:"namespace" json:"namespace"`
	// TTL applied to run data; zero means keep forever
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// Maximum retries for a single command
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// Connection pool size
	PoolSize int `yaml:"pool_size" json:"pool_size"`
}

// DefaultRedisConfig returns the default Redis backend configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       "localhost:6379",
		Namespace:  "auditflow",
		MaxRetries: 3,
		PoolSize:   10,
	}
}

// RedisStore is a Store backed by Redis. Each (run, key) pair maps to one
// Redis string; per-key atomicity comes from Redis itself, so concurrent
// workers never serialize against a store-wide lock.
type RedisStore struct {
	client *redis.Client
	config RedisConfig
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(config RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Namespace == "" {
		config.Namespace = "auditflow"
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: config.MaxRetries,
		PoolSize:   config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	s := &RedisStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "redis_store")),
	}
	s.logger.Info("redis artifact store initialized",
		zap.String("addr", config.Addr),
		zap.String("namespace", config.Namespace),
	)
	return s, nil
}

// NewRedisStoreFromClient wraps an existing client, used by tests.
func NewRedisStoreFromClient(client *redis.Client, config RedisConfig, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Namespace == "" {
		config.Namespace = "auditflow"
	}
	return &RedisStore{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "redis_store")),
	}
}

func (s *RedisStore) artifactKey(runID, key string) string {
	return fmt.Sprintf("%s:%s:artifacts:%s", s.config.Namespace, runID, key)
}

func (s *RedisStore) docKey(runID, key string) string {
	return fmt.Sprintf("%s:%s:system:%s", s.config.Namespace, runID, key)
}

func (s *RedisStore) runsKey() string {
	return s.config.Namespace + ":runs"
}

func (s *RedisStore) setValue(ctx context.Context, redisKey, runID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisKey, data, s.config.TTL)
	pipe.SAdd(ctx, s.runsKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

// Save stores a message under (runID, key).
func (s *RedisStore) Save(ctx context.Context, runID, key string, msg types.Message) error {
	return s.setValue(ctx, s.artifactKey(runID, key), runID, msg)
}

// Get retrieves the message stored under (runID, key).
func (s *RedisStore) Get(ctx context.Context, runID, key string) (types.Message, error) {
	data, err := s.client.Get(ctx, s.artifactKey(runID, key)).Bytes()
	if err == redis.Nil {
		return types.Message{}, fmt.Errorf("artifact %q in run %q: %w", key, runID, ErrNotFound)
	}
	if err != nil {
		return types.Message{}, fmt.Errorf("redis get: %w", err)
	}
	return types.UnmarshalMessage(data)
}

// Exists reports whether a message is stored under (runID, key).
func (s *RedisStore) Exists(ctx context.Context, runID, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.artifactKey(runID, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Delete removes the message under (runID, key). No-op if absent.
func (s *RedisStore) Delete(ctx context.Context, runID, key string) error {
	if err := s.client.Del(ctx, s.artifactKey(runID, key)).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// ListKeys returns all artifact keys for a run with the given prefix.
func (s *RedisStore) ListKeys(ctx context.Context, runID, prefix string) ([]string, error) {
	pattern := s.artifactKey(runID, prefix) + "*"
	strip := s.artifactKey(runID, "")

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), strip))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes all data for a run.
func (s *RedisStore) Clear(ctx context.Context, runID string) error {
	pattern := fmt.Sprintf("%s:%s:*", s.config.Namespace, runID)
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	var toDelete []string
	for iter.Next(ctx) {
		toDelete = append(toDelete, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	pipe := s.client.TxPipeline()
	if len(toDelete) > 0 {
		pipe.Del(ctx, toDelete...)
	}
	pipe.SRem(ctx, s.runsKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// SaveJSON stores a raw JSON document under (runID, key).
func (s *RedisStore) SaveJSON(ctx context.Context, runID, key string, doc map[string]any) error {
	return s.setValue(ctx, s.docKey(runID, key), runID, doc)
}

// GetJSON retrieves a raw JSON document stored under (runID, key).
func (s *RedisStore) GetJSON(ctx context.Context, runID, key string) (map[string]any, error) {
	data, err := s.client.Get(ctx, s.docKey(runID, key)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("document %q in run %q: %w", key, runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// ListRuns enumerates run IDs recorded in the runs set.
func (s *RedisStore) ListRuns(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.runsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
