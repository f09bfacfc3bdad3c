// Package cache keeps recent resolutions in Redis so that bursts of requests
// for the same hung process share one snapshot read.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/redis"
)

const keyPrefix = "binder:resolution:"

// KV is the subset of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type ResolutionCache struct {
	client  KV
	cfg     config.RedisConfig
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client KV, cfg config.RedisConfig, m *metrics.Metrics) *ResolutionCache {
	return &ResolutionCache{
		client:  client,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "resolution-cache"),
	}
}

func (c *ResolutionCache) Get(ctx context.Context, pid int) (*binder.Resolution, bool) {
	key := buildKey(pid)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var res binder.Resolution
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hit()
	c.logger.Debug("cache hit", "pid", pid, "key", key)
	return &res, true
}

// Set stores res unless the snapshot was unavailable; an unreadable source
// may recover before the TTL runs out.
func (c *ResolutionCache) Set(ctx context.Context, res *binder.Resolution) {
	if !res.SourceAvailable {
		return
	}
	key := buildKey(res.TargetPID)
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached resolution for pid or computes it, collapsing
// concurrent misses for the same pid into a single computeFn call. cacheHit
// is false only for the caller whose computeFn ran; callers that waited on
// it receive the same Resolution with cacheHit true, so the result is
// recorded as fresh exactly once.
func (c *ResolutionCache) GetOrCompute(
	ctx context.Context,
	pid int,
	computeFn func() (*binder.Resolution, error),
) (res *binder.Resolution, cacheHit bool, err error) {
	if res, ok := c.Get(ctx, pid); ok {
		return res, true, nil
	}
	key := buildKey(pid)
	computed := false
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		computed = true
		res, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*binder.Resolution), !computed, nil
}

func (c *ResolutionCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *ResolutionCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResolutionCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ResolutionCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func buildKey(pid int) string {
	return keyPrefix + strconv.Itoa(pid)
}
