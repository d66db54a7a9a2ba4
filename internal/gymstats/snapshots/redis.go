package snapshots

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "gymstats::snapshot::"

// RedisStore keeps snapshots as plain string values, without expiration.
type RedisStore struct {
	redisClient *redis.Client
}

func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{
		redisClient: redisClient,
	}
}

func (s *RedisStore) Save(ctx context.Context, key string, blob []byte) error {
	if err := s.redisClient.Set(ctx, redisKeyPrefix+key, blob, 0).Err(); err != nil {
		return fmt.Errorf("redis set snapshot %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]byte, error) {
	blob, err := s.redisClient.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot %s: %w", key, err)
	}
	return blob, nil
}
