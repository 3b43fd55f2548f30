package rate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scope selects a counter family.
type Scope string

const (
	ScopeRegister     Scope = "rr"
	ScopeResetRequest Scope = "rp"
	ScopeVerification Scope = "rv"
)

// Policy is the budget of one scope: Limit hits per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Config maps scopes to policies. Scopes without a policy, or with a
// non-positive limit, are unlimited.
type Config struct {
	Prefix   string
	Policies map[Scope]Policy
}

// Limiter enforces per-subject request budgets with Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "acr"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Allow counts one hit for subject and returns ErrRateLimited once the
// scope's budget for the current window is exceeded.
func (l *Limiter) Allow(ctx context.Context, scope Scope, subject string) error {
	p, ok := l.config.Policies[scope]
	if !ok || p.Limit <= 0 || p.Window <= 0 {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.key(scope, subject), p.Window)
	if err != nil {
		return err
	}
	if count > int64(p.Limit) {
		return ErrRateLimited
	}
	return nil
}

// Count returns the hits recorded for subject in the current window.
func (l *Limiter) Count(ctx context.Context, scope Scope, subject string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(scope, subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// Reset clears subject's counter in scope.
func (l *Limiter) Reset(ctx context.Context, scope Scope, subject string) error {
	if err := l.redis.Del(ctx, l.key(scope, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(scope Scope, subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return l.config.Prefix + ":" + string(scope) + ":" + hex.EncodeToString(sum[:16])
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
