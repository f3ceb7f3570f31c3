package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore persists snapshots to Redis.
// Each run is a hash keyed by node ID, so (runID, nodeID) overwrite
// semantics match the other backends. An optional TTL expires whole
// runs after inactivity.
//
// Sequence numbers are assigned under a process-local mutex; use a
// single writer per run ID when multiple processes share the store.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	mu     sync.Mutex
	closed bool
}

// redisEnvelope wraps snapshot bytes with store-side ordering metadata.
type redisEnvelope struct {
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Data      []byte    `json:"data"`
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisConfig)

type redisConfig struct {
	password string
	db       int
	prefix   string
	ttl      time.Duration
}

// WithRedisPassword sets the Redis AUTH password.
func WithRedisPassword(password string) RedisOption {
	return func(c *redisConfig) {
		c.password = password
	}
}

// WithRedisDB selects the Redis logical database.
func WithRedisDB(db int) RedisOption {
	return func(c *redisConfig) {
		c.db = db
	}
}

// WithRedisKeyPrefix overrides the key prefix for run hashes.
func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		c.prefix = prefix
	}
}

// WithRedisTTL expires a run's snapshots after the given idle duration.
// Zero means no expiry.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.ttl = ttl
	}
}

// NewRedisStore creates a new Redis snapshot store and verifies connectivity.
func NewRedisStore(addr string, opts ...RedisOption) (*RedisStore, error) {
	cfg := redisConfig{prefix: "turnflow:session:"}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.password,
		DB:       cfg.db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.prefix,
		ttl:    cfg.ttl,
	}, nil
}

func (s *RedisStore) key(runID string) string {
	return s.prefix + runID
}

// Save implements Store.
func (s *RedisStore) Save(runID, nodeID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	ctx := context.Background()
	key := s.key(runID)

	// Determine sequence number from existing entries
	existing, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("read run hash: %w", err)
	}
	seq := 1
	for _, raw := range existing {
		var env redisEnvelope
		if json.Unmarshal([]byte(raw), &env) == nil && env.Sequence >= seq {
			seq = env.Sequence + 1
		}
	}

	env := redisEnvelope{
		Sequence:  seq,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := s.client.HSet(ctx, key, nodeID, payload).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return fmt.Errorf("set ttl: %w", err)
		}
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(runID, nodeID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	raw, err := s.client.HGet(context.Background(), s.key(runID), nodeID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env.Data, nil
}

// List implements Store.
func (s *RedisStore) List(runID string) ([]Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	entries, err := s.client.HGetAll(context.Background(), s.key(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	infos := make([]Info, 0, len(entries))
	for nodeID, raw := range entries {
		var env redisEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, fmt.Errorf("decode envelope for node %s: %w", nodeID, err)
		}
		infos = append(infos, Info{
			RunID:     runID,
			NodeID:    nodeID,
			Sequence:  env.Sequence,
			Timestamp: env.Timestamp,
			Size:      int64(len(env.Data)),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})

	return infos, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(runID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := s.client.HDel(context.Background(), s.key(runID), nodeID).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// DeleteRun implements Store.
func (s *RedisStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if err := s.client.Del(context.Background(), s.key(runID)).Err(); err != nil {
		return fmt.Errorf("delete run snapshots: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.client.Close()
}
