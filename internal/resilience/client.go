package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/citescout/citescout/internal/scholar"
)

// CallFunc performs one upstream request attempt and returns the raw payload.
type CallFunc func(ctx context.Context) ([]byte, error)

// Client drives upstream calls through the retry policy and the shared
// cache. A fresh cache hit short-circuits the call entirely; after retry
// exhaustion a stale entry inside the max-stale window is served with the
// stale flag set.
type Client struct {
	policy *scholar.ExponentialRetryPolicy
	cache  *Cache
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

// NewClient builds a Client. cache may be nil to disable caching.
func NewClient(policy *scholar.ExponentialRetryPolicy, cache *Cache, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		policy: policy,
		cache:  cache,
		sleep:  sleepContext,
		logger: logger,
	}
}

// Do executes call with retries and caching. The returned bool reports
// whether the payload came from an expired cache entry.
func (c *Client) Do(ctx context.Context, key string, call CallFunc) ([]byte, bool, error) {
	if payload, ok := c.cache.Get(key); ok {
		return payload, false, nil
	}

	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		payload, err := call(ctx)
		if err == nil {
			c.cache.Put(key, payload)
			return payload, false, nil
		}
		lastErr = err
		if !c.policy.ShouldRetry(err, attempt) {
			break
		}
		delay := c.policy.Backoff(attempt)
		c.logger.Warn("upstream call failed, backing off",
			zap.String("key", key),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	if payload, expired, ok := c.cache.GetStale(key); ok {
		c.logger.Warn("serving cached payload after retry exhaustion",
			zap.String("key", key),
			zap.Bool("expired", expired),
			zap.Error(lastErr),
		)
		return payload, expired, nil
	}
	return nil, false, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
