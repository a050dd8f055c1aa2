package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes the login throttle.
type Config struct {
	Prefix       string
	MaxAttempts  int
	Cooldown     time.Duration
	ThrottleByIP bool
}

// Limiter counts failed portal logins per email and per client IP in fixed
// windows.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New returns a limiter. A zero Prefix becomes "pg".
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "pg"
	}
	return &Limiter{redis: client, config: cfg}
}

// Check returns ErrRateLimited once email or ip has exhausted its budget.
// Both counters are read in one round trip.
func (l *Limiter) Check(ctx context.Context, email, ip string) error {
	keys := l.keys(email, ip)
	vals, err := l.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		if count >= int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// RetryAfter returns how long until the longest-lived throttled counter for
// email or ip expires. Zero means no counter is blocking.
func (l *Limiter) RetryAfter(ctx context.Context, email, ip string) (time.Duration, error) {
	var longest time.Duration
	for _, key := range l.keys(email, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count < int64(l.config.MaxAttempts) {
			continue
		}
		ttl, err := l.redis.PTTL(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ttl > longest {
			longest = ttl
		}
	}
	return longest, nil
}

// Fail records one failed attempt.
func (l *Limiter) Fail(ctx context.Context, email, ip string) error {
	count, err := l.incrementWithTTL(ctx, l.emailKey(email))
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	if l.config.ThrottleByIP && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.ipKey(ip))
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// Reset clears the counters after a successful login.
func (l *Limiter) Reset(ctx context.Context, email, ip string) error {
	if err := l.redis.Del(ctx, l.keys(email, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) emailKey(email string) string {
	return l.config.Prefix + ":login:e:" + email
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + ":login:ip:" + ip
}

func (l *Limiter) keys(email, ip string) []string {
	keys := []string{l.emailKey(email)}
	if l.config.ThrottleByIP && ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	return keys
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set only by the first hit.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
