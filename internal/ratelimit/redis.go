package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares windows across instances. Windows are aligned to
// multiples of their length, so every instance counts into the same key for
// the same account and window.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisLimiter connects and pings the server so a bad address fails at
// startup rather than on the first claim.
func NewRedisLimiter(ctx context.Context, addr, password string, db int) (*RedisLimiter, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisLimiter{client: client, prefix: "docuchain:ratelimit:", now: time.Now}, nil
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	start, end := windowBounds(r.now(), window)
	bucketKey := r.prefix + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, bucketKey)
		// Expire a second after the window ends to absorb clock skew between instances.
		pipe.PExpireAt(ctx, bucketKey, end.Add(time.Second))
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return decide(incr.Val(), limit, end), nil
}

// windowBounds returns the aligned window containing now.
func windowBounds(now time.Time, window time.Duration) (time.Time, time.Time) {
	if window <= 0 {
		window = time.Second
	}
	start := now.Truncate(window)
	return start, start.Add(window)
}

func decide(count int64, limit int, windowEnd time.Time) Decision {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   windowEnd,
	}
}
