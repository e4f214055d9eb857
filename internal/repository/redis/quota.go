package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courtbook/identity-service/internal/core/port"
)

// QuotaRepository tracks per-day counters in Redis. Keys are bucketed by
// calendar date in the supplied day's location and expire at the following
// midnight, so the counter resets at local midnight rather than 24 hours
// after the first increment.
type QuotaRepository struct {
	client *redis.Client
	prefix string
}

// NewQuotaRepository constructs a repository using the provided Redis client.
func NewQuotaRepository(client *redis.Client, prefix string) *QuotaRepository {
	return &QuotaRepository{client: client, prefix: prefix}
}

// IncrementDaily bumps the counter for the identifier's current day bucket
// and returns the new value.
func (r *QuotaRepository) IncrementDaily(ctx context.Context, identifier string, day time.Time) (int, error) {
	key := r.key(identifier, day)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}

	if count == 1 {
		if err := r.client.ExpireAt(ctx, key, nextMidnight(day)).Err(); err != nil {
			return 0, fmt.Errorf("redis expireat: %w", err)
		}
	}

	return int(count), nil
}

// DailyCount returns the counter for the identifier's current day bucket.
func (r *QuotaRepository) DailyCount(ctx context.Context, identifier string, day time.Time) (int, error) {
	count, err := r.client.Get(ctx, r.key(identifier, day)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get: %w", err)
	}

	return count, nil
}

func (r *QuotaRepository) key(identifier string, day time.Time) string {
	bucket := day.Format("2006-01-02")
	if r.prefix == "" {
		return fmt.Sprintf("%s:%s", identifier, bucket)
	}
	return fmt.Sprintf("%s:%s:%s", r.prefix, identifier, bucket)
}

func nextMidnight(day time.Time) time.Time {
	year, month, date := day.Date()
	return time.Date(year, month, date+1, 0, 0, 0, 0, day.Location())
}

var _ port.DailyQuotaStore = (*QuotaRepository)(nil)
