package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/auditflow/auditflow/types"
)

// MongoConfig configures the MongoDB artifact store backend.
type MongoConfig struct {
	// Connection URI, e.g. "mongodb://localhost:27017"
	URI string `yaml:"uri" json:"uri"`
	// Database name; defaults to "auditflow"
	Database string `yaml:"database" json:"database"`
	// Collection name; defaults to "artifacts"
	Collection string `yaml:"collection" json:"collection"`
	// Connect timeout
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// DefaultMongoConfig returns the default MongoDB backend configuration.
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:            "mongodb://localhost:27017",
		Database:       "auditflow",
		Collection:     "artifacts",
		ConnectTimeout: 5 * time.Second,
	}
}

// mongoDoc is the persisted document shape. The message itself is kept as
// canonical JSON so the wire form matches the filesystem backend exactly.
type mongoDoc struct {
	RunID   string `bson:"run_id"`
	Kind    string `bson:"kind"` // "artifact" or "system"
	Key     string `bson:"key"`
	Payload string `bson:"payload"`
}

// MongoStore is a Store backed by a MongoDB collection, for deployments
// where runs are shared between processes or hosts. Documents are keyed by
// (run_id, kind, key) with a unique index, so per-key upserts are atomic.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore connects to MongoDB, verifies the connection, and ensures
// the (run_id, kind, key) unique index exists.
func NewMongoStore(config MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Database == "" {
		config.Database = "auditflow"
	}
	if config.Collection == "" {
		config.Collection = "artifacts"
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}

	client, err := mongo.Connect(options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	coll := client.Database(config.Database).Collection(config.Collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}, {Key: "kind", Value: 1}, {Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("create artifact index: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   coll,
		logger: logger.With(zap.String("component", "mongo_store")),
	}
	s.logger.Info("mongo artifact store initialized",
		zap.String("database", config.Database),
		zap.String("collection", config.Collection),
	)
	return s, nil
}

func (s *MongoStore) upsert(ctx context.Context, runID, kind, key string, payload []byte) error {
	filter := bson.M{"run_id": runID, "kind": kind, "key": key}
	update := bson.M{"$set": mongoDoc{RunID: runID, Kind: kind, Key: key, Payload: string(payload)}}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo upsert: %w", err)
	}
	return nil
}

func (s *MongoStore) fetch(ctx context.Context, runID, kind, key string) ([]byte, error) {
	var doc mongoDoc
	err := s.coll.FindOne(ctx, bson.M{"run_id": runID, "kind": kind, "key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("artifact %q in run %q: %w", key, runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	return []byte(doc.Payload), nil
}

// Save stores a message under (runID, key).
func (s *MongoStore) Save(ctx context.Context, runID, key string, msg types.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return s.upsert(ctx, runID, "artifact", key, payload)
}

// Get retrieves the message stored under (runID, key).
func (s *MongoStore) Get(ctx context.Context, runID, key string) (types.Message, error) {
	payload, err := s.fetch(ctx, runID, "artifact", key)
	if err != nil {
		return types.Message{}, err
	}
	return types.UnmarshalMessage(payload)
}

// Exists reports whether a message is stored under (runID, key).
func (s *MongoStore) Exists(ctx context.Context, runID, key string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"run_id": runID, "kind": "artifact", "key": key})
	if err != nil {
		return false, fmt.Errorf("mongo count: %w", err)
	}
	return n > 0, nil
}

// Delete removes the message under (runID, key). No-op if absent.
func (s *MongoStore) Delete(ctx context.Context, runID, key string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"run_id": runID, "kind": "artifact", "key": key})
	if err != nil {
		return fmt.Errorf("mongo delete: %w", err)
	}
	return nil
}

// ListKeys returns all artifact keys for a run with the given prefix.
func (s *MongoStore) ListKeys(ctx context.Context, runID, prefix string) ([]string, error) {
	filter := bson.M{"run_id": runID, "kind": "artifact"}
	if prefix != "" {
		filter["key"] = bson.M{"$regex": "^" + regexQuote(prefix)}
	}
	cursor, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}
	defer cursor.Close(ctx)

	var keys []string
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode: %w", err)
		}
		keys = append(keys, doc.Key)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes all data for a run.
func (s *MongoStore) Clear(ctx context.Context, runID string) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"run_id": runID})
	if err != nil {
		return fmt.Errorf("mongo clear: %w", err)
	}
	return nil
}

// SaveJSON stores a raw JSON document under (runID, key).
func (s *MongoStore) SaveJSON(ctx context.Context, runID, key string, doc map[string]any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return s.upsert(ctx, runID, "system", key, payload)
}

// GetJSON retrieves a raw JSON document stored under (runID, key).
func (s *MongoStore) GetJSON(ctx context.Context, runID, key string) (map[string]any, error) {
	payload, err := s.fetch(ctx, runID, "system", key)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// ListRuns enumerates distinct run IDs in the collection.
func (s *MongoStore) ListRuns(ctx context.Context) ([]string, error) {
	res := s.coll.Distinct(ctx, "run_id", bson.M{})
	var ids []string
	if err := res.Decode(&ids); err != nil {
		return nil, fmt.Errorf("mongo distinct: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)

// regexQuote escapes regex metacharacters in a key prefix.
func regexQuote(s string) string {
	const meta = `\.+*?()|[]{}^$`
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(meta); j++ {
			if s[i] == meta[j] {
				out = append(out, '\\')
				break
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}
