// Package ratelimit implements the fixed-window request counter in front of the exchange handler.
// It is an advisory throttle and not a security control.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/brizzai/diary-auth/internal/config"
	"github.com/brizzai/diary-auth/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Counter is the state of one client's current window
type Counter struct {
	Count   int
	ResetAt time.Time
}

// Store counts hits per key. A key whose window expired starts over at 1.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (Counter, error)
}

// Decision is the outcome of Allow
type Decision struct {
	Allowed   bool
	Count     int
	Remaining int
	ResetAt   time.Time
}

// Limiter allows at most limit hits per key per window
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

func NewLimiter(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window}
}

// Allow records a hit for key. Store failures let the request through.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	counter, err := l.store.Increment(ctx, "rate_limit:"+key, l.window)
	if err != nil {
		logger.Warn("Rate limit store unavailable, allowing request", zap.String("client", key), zap.Error(err))
		return Decision{Allowed: true, Remaining: l.limit}, err
	}

	remaining := l.limit - counter.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   counter.Count <= l.limit,
		Count:     counter.Count,
		Remaining: remaining,
		ResetAt:   counter.ResetAt,
	}, nil
}

// NewStore builds the store selected in the configuration
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.RateLimit.Store {
	case config.RateLimitStoreMemory, "":
		return NewMemoryStore(), nil
	case config.RateLimitStoreRedis:
		return NewRedisStore(cfg.RateLimit)
	default:
		return nil, fmt.Errorf("unknown rate limit store %q", cfg.RateLimit.Store)
	}
}

func newLimiter(cfg *config.Config, store Store) *Limiter {
	return NewLimiter(store, cfg.RateLimit.Limit, cfg.RateLimit.Window)
}

// Module provides the configured limiter
var Module = fx.Module("ratelimit",
	fx.Provide(
		NewStore,
		newLimiter,
	),
)
