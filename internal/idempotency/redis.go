package idempotency

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "afrisens:idempotency:"

type RedisConfig struct {
    Addr     string
    Password string
    DB       int
}

// RedisStore keeps idempotency keys in Redis so every API instance sees them.
type RedisStore struct {
    client    *redis.Client
    keyPrefix string
}

// NewRedisStore connects and pings Redis before returning.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
    client := redis.NewClient(&redis.Options{
        Addr:     cfg.Addr,
        Password: cfg.Password,
        DB:       cfg.DB,
    })

    pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    if err := client.Ping(pingCtx).Err(); err != nil {
        _ = client.Close()
        return nil, fmt.Errorf("connect to redis: %w", err)
    }
    return NewRedisStoreWithClient(client, defaultKeyPrefix), nil
}

func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
    if keyPrefix == "" {
        keyPrefix = defaultKeyPrefix
    }
    return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
    ok, err := s.client.SetNX(ctx, s.keyPrefix+key, pendingMarker, ttl).Result()
    if err != nil {
        return false, fmt.Errorf("reserve idempotency key: %w", err)
    }
    return ok, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, resp Response, ttl time.Duration) error {
    raw, err := encodeCompleted(resp)
    if err != nil {
        return fmt.Errorf("encode idempotent response: %w", err)
    }
    if err := s.client.Set(ctx, s.keyPrefix+key, raw, ttl).Err(); err != nil {
        return fmt.Errorf("complete idempotency key: %w", err)
    }
    return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, error) {
    raw, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
    if errors.Is(err, redis.Nil) {
        return Entry{}, ErrNotFound
    }
    if err != nil {
        return Entry{}, fmt.Errorf("read idempotency key: %w", err)
    }
    entry, err := decodeEntry(raw)
    if err != nil {
        return Entry{}, fmt.Errorf("decode idempotency entry: %w", err)
    }
    return entry, nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
    if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
        return fmt.Errorf("release idempotency key: %w", err)
    }
    return nil
}

func (s *RedisStore) Close() error {
    return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
