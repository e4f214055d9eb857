package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courtbook/identity-service/internal/core/port"
)

// SlidingWindowConfig tunes the shared attempt store. KeyPrefix namespaces
// the sorted sets (one per scope:identifier pair) and TTL bounds how long an
// idle set survives after its last attempt.
type SlidingWindowConfig struct {
	KeyPrefix string
	TTL       time.Duration
}

// RateLimitRepository tracks attempts in Redis sorted sets, one member per
// attempt scored by its unix-nano timestamp. Trimming and counting are then
// plain score-range operations, which keeps the window sliding rather than
// resetting on fixed boundaries.
type RateLimitRepository struct {
	client *redis.Client
	cfg    SlidingWindowConfig
}

// NewRateLimitRepository constructs the attempt store.
func NewRateLimitRepository(client *redis.Client, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg}
}

// RecordAttempt appends one attempt and refreshes the key's TTL in a single
// round trip.
func (r *RateLimitRepository) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := r.key(identifier)
	nanos := at.UnixNano()

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(nanos), Member: strconv.FormatInt(nanos, 10)})
	if r.cfg.TTL > 0 {
		pipe.Expire(ctx, key, r.cfg.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}

	return nil
}

// CountAttempts reports how many attempts landed inside the window ending at
// the reference instant.
func (r *RateLimitRepository) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	lo, hi, err := windowBounds(window, reference)
	if err != nil {
		return 0, err
	}

	count, err := r.client.ZCount(ctx, r.key(identifier), lo, hi).Result()
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}

	return int(count), nil
}

// TrimWindow drops attempts that have aged out of the window. Callers run it
// before counting so stale entries never inflate the decision.
func (r *RateLimitRepository) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	lo, _, err := windowBounds(window, reference)
	if err != nil {
		return err
	}

	if err := r.client.ZRemRangeByScore(ctx, r.key(identifier), "-inf", "("+lo).Err(); err != nil {
		return fmt.Errorf("trim window: %w", err)
	}

	return nil
}

// OldestAttempt returns the earliest attempt still inside the window, which
// is what the limiter turns into a retry-after hint. The second return is
// false when the window is empty.
func (r *RateLimitRepository) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	lo, hi, err := windowBounds(window, reference)
	if err != nil {
		return time.Time{}, false, err
	}

	members, err := r.client.ZRangeByScore(ctx, r.key(identifier), &redis.ZRangeBy{
		Min:   lo,
		Max:   hi,
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest attempt: %w", err)
	}
	if len(members) == 0 {
		return time.Time{}, false, nil
	}

	nanos, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse attempt timestamp %q: %w", members[0], err)
	}

	return time.Unix(0, nanos), true, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return r.cfg.KeyPrefix + ":" + identifier
}

// windowBounds renders the inclusive score range [reference-window, reference]
// as the integer strings ZCOUNT and friends expect.
func windowBounds(window time.Duration, reference time.Time) (string, string, error) {
	if window <= 0 {
		return "", "", errors.New("window must be positive")
	}
	lo := strconv.FormatInt(reference.Add(-window).UnixNano(), 10)
	hi := strconv.FormatInt(reference.UnixNano(), 10)
	return lo, hi, nil
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
