package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgellow/b2c-front/internal/identity"
	"github.com/dgellow/b2c-front/internal/log"
	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

const defaultRedisKeyPrefix = "b2c-front:identity:"

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore persists identities as JSON strings. Expiry is delegated to
// Redis key TTLs, so CleanupExpired has nothing to do.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ IdentityStore = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection with a PING
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return newRedisStore(client, cfg), nil
}

func newRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}
	return &RedisStore{client: client, keyPrefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

func (s *RedisStore) GetIdentity(ctx context.Context, sessionID string) (*IdentityRecord, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}

	var rec IdentityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode identity: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) SetIdentity(ctx context.Context, sessionID string, id identity.Identity, confirmed bool) error {
	now := time.Now()
	data, err := json.Marshal(IdentityRecord{
		SessionID: sessionID,
		Identity:  id,
		Confirmed: confirmed,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}

	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteIdentity(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	return nil
}

func (s *RedisStore) CleanupExpired(context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		log.LogWarnWithFields("redis", "Error closing redis client", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	return nil
}
