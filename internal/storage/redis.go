package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "icdeck:fingerprint:"

// RedisStore shares fingerprints between workers through Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the URL (redis://host:port/db) and pings it.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Fingerprint(ctx context.Context, flowName string) (string, bool, error) {
	fp, err := s.client.Get(ctx, redisKeyPrefix+flowName).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read fingerprint for %s: %w", flowName, err)
	}
	return fp, true, nil
}

func (s *RedisStore) SetFingerprint(ctx context.Context, flowName, fp string) error {
	if err := s.client.Set(ctx, redisKeyPrefix+flowName, fp, 0).Err(); err != nil {
		return fmt.Errorf("failed to write fingerprint for %s: %w", flowName, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
