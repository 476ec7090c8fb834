package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docsync/backend/internal/domain/shared"
	"github.com/docsync/backend/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyPrefix = "docsync:processed:"
	cursorPrefix      = "docsync:cursor:"
)

// NewRedisClient connects to redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// RedisStore is an idempotency store shared by all instances through redis
type RedisStore struct {
	client *redis.Client
	owned  bool
}

// NewRedisStore wraps client; Close closes the client only when owned is true
func NewRedisStore(client *redis.Client, owned bool) *RedisStore {
	return &RedisStore{client: client, owned: owned}
}

// MarkProcessed uses SET NX with the TTL
func (s *RedisStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, idempotencyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return ok, nil
}

// IsProcessed checks whether the key exists
func (s *RedisStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, idempotencyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return n > 0, nil
}

// Close releases the client when the store owns it
func (s *RedisStore) Close() error {
	if s.owned {
		return s.client.Close()
	}
	return nil
}

// RedisCursorStore keeps change-feed cursors in redis under docsync:cursor:<member>
type RedisCursorStore struct {
	client *redis.Client
}

// NewRedisCursorStore creates a cursor store on client
func NewRedisCursorStore(client *redis.Client) *RedisCursorStore {
	return &RedisCursorStore{client: client}
}

// Load returns the cursor for member; ok is false when none is stored
func (s *RedisCursorStore) Load(ctx context.Context, memberID string) (string, bool, error) {
	v, err := s.client.Get(ctx, cursorPrefix+memberID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load cursor: %w", err)
	}
	return v, true, nil
}

// Save stores the cursor without expiry
func (s *RedisCursorStore) Save(ctx context.Context, memberID, cursor string) error {
	if err := s.client.Set(ctx, cursorPrefix+memberID, cursor, 0).Err(); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// Delete forgets the cursor for member
func (s *RedisCursorStore) Delete(ctx context.Context, memberID string) error {
	return s.client.Del(ctx, cursorPrefix+memberID).Err()
}

// NewIdempotencyStore returns a redis store when redis is enabled and reachable,
// otherwise a process-local store
func NewIdempotencyStore(client *redis.Client, logger *zap.Logger) shared.IdempotencyStore {
	if client != nil {
		logger.Info("using redis idempotency store")
		return NewRedisStore(client, false)
	}
	logger.Warn("redis disabled, using in-memory idempotency store")
	return NewMemoryStore()
}

var _ shared.IdempotencyStore = (*RedisStore)(nil)
