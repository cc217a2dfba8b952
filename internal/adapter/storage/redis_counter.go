package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snapfulfil/order-router/internal/core/domain"
	"github.com/snapfulfil/order-router/internal/port"
)

const volumeKeyPrefix = "volume:"

// RedisCounterStore keeps one counter per partner per UTC calendar day
// under volume:<PARTNER>:<YYYY-MM-DD>. Every call carries its own
// timeout so a stalled Redis cannot block a worker.
type RedisCounterStore struct {
	client    *redis.Client
	opTimeout time.Duration
}

func NewRedisCounterStore(client *redis.Client, opTimeout time.Duration) *RedisCounterStore {
	return &RedisCounterStore{client: client, opTimeout: opTimeout}
}

func volumeKey(partner domain.Partner, day time.Time) string {
	return volumeKeyPrefix + string(partner) + ":" + day.UTC().Format("2006-01-02")
}

func (s *RedisCounterStore) IncrementVolume(ctx context.Context, partner domain.Partner, day time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	n, err := s.client.Incr(ctx, volumeKey(partner, day)).Result()
	if err != nil {
		return 0, fmt.Errorf("incr volume for %s: %w", partner, err)
	}
	return n, nil
}

func (s *RedisCounterStore) Volume(ctx context.Context, partner domain.Partner, day time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	n, err := s.client.Get(ctx, volumeKey(partner, day)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get volume for %s: %w", partner, err)
	}
	return n, nil
}

var _ port.CounterStore = (*RedisCounterStore)(nil)
