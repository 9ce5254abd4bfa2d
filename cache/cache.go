// Package cache exposes the content-cache invalidation hook shared with the
// CMS collaborators.
//
// Unlike the session store, the cache fails open: an unreachable Redis is
// logged and reported as success, because a stale post listing is harmless
// while a failed password change is not.
package cache

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Invalidator drops cached entries. keyOrPattern is an exact key or a Redis
// glob pattern such as "post:*".
type Invalidator interface {
	Invalidate(ctx context.Context, keyOrPattern string) error
}

// Nop is an Invalidator that does nothing.
type Nop struct{}

// Invalidate implements [Invalidator].
func (Nop) Invalidate(context.Context, string) error { return nil }

const scanBatch = 500

type redisInvalidator struct {
	client redis.UniversalClient
	prefix string
	logger *zap.Logger
}

// NewRedis returns an Invalidator over client. prefix, when set, is
// prepended to every key as "<prefix>:".
func NewRedis(client redis.UniversalClient, prefix string, logger *zap.Logger) Invalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisInvalidator{client: client, prefix: prefix, logger: logger.Named("cache")}
}

func (c *redisInvalidator) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Invalidate deletes the key, or every key matching the pattern. Redis
// errors are logged and swallowed.
func (c *redisInvalidator) Invalidate(ctx context.Context, keyOrPattern string) error {
	if keyOrPattern == "" {
		return nil
	}
	target := c.key(keyOrPattern)

	if !isPattern(keyOrPattern) {
		if err := c.client.Unlink(ctx, target).Err(); err != nil {
			c.logger.Warn("cache invalidate failed", zap.String("key", target), zap.Error(err))
		}
		return nil
	}

	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, target, scanBatch).Result()
		if err != nil {
			c.logger.Warn("cache scan failed", zap.String("pattern", target), zap.Error(err))
			return nil
		}
		if len(keys) > 0 {
			n, err := c.client.Unlink(ctx, keys...).Result()
			if err != nil {
				c.logger.Warn("cache invalidate failed", zap.String("pattern", target), zap.Error(err))
				return nil
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.Debug("cache invalidated", zap.String("pattern", target), zap.Int64("removed", removed))
	return nil
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
