// Package ratelimit throttles downloads per buyer with fixed-window counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/iurnickita/digimart/internal/ratelimit/config"
)

const downloadWindow = time.Minute

type WindowStore interface {
	// IncrementWindow counts one hit in the window and returns the count and
	// the time left until the window resets.
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Close() error
}

type Limiter struct {
	store     WindowStore
	perMinute int64
}

// NewLimiter picks redis when an address is configured and process memory otherwise.
func NewLimiter(cfg config.Config) *Limiter {
	var store WindowStore
	if cfg.RedisAddr != "" {
		store = NewRedisStore(goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}))
	} else {
		store = NewMemoryStore()
	}
	return NewLimiterWithStore(store, cfg.DownloadsPerMinute)
}

func NewLimiterWithStore(store WindowStore, perMinute int) *Limiter {
	if perMinute < 0 {
		perMinute = 0
	}
	return &Limiter{store: store, perMinute: int64(perMinute)}
}

// AllowDownload reports whether the buyer may download now; when not, it
// returns how long to wait.
func (l *Limiter) AllowDownload(ctx context.Context, buyer string) (time.Duration, bool, error) {
	if l.perMinute == 0 {
		return 0, true, nil
	}
	if buyer == "" {
		return 0, false, errors.New("buyer is required")
	}

	count, ttl, err := l.store.IncrementWindow(ctx, "rate:downloads:"+buyer, downloadWindow)
	if err != nil {
		return 0, false, fmt.Errorf("download rate window: %w", err)
	}
	if count > l.perMinute {
		if ttl <= 0 {
			ttl = time.Second
		}
		return ttl, false, nil
	}
	return 0, true, nil
}

func (l *Limiter) Close() error {
	return l.store.Close()
}
