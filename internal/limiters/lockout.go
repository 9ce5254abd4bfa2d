package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockoutUnavailable indicates the lockout backend is unreachable.
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// Counter and expiry are set together so a crash between the two commands
// cannot leave a lock without a TTL.
var recordFailureLua = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 or redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// LockoutConfig holds configuration for the failed-password lockout.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration // default 15m
}

// LockoutLimiter counts failed password checks per email and reports the
// account as locked once Threshold is reached. The counter expires Duration
// after the first failure of a run.
type LockoutLimiter struct {
	redis redis.UniversalClient
	cfg   LockoutConfig
}

// NewLockoutLimiter creates a lockout limiter. It is inert unless cfg.Enabled
// and cfg.Threshold > 0.
func NewLockoutLimiter(redisClient redis.UniversalClient, cfg LockoutConfig) *LockoutLimiter {
	if cfg.Duration <= 0 {
		cfg.Duration = 15 * time.Minute
	}
	return &LockoutLimiter{redis: redisClient, cfg: cfg}
}

// keyFor returns the counter key, or "" when the limiter does not apply.
func (l *LockoutLimiter) keyFor(email string) string {
	if l == nil || !l.cfg.Enabled || l.cfg.Threshold <= 0 || email == "" {
		return ""
	}
	return "alo:" + strings.ToLower(strings.TrimSpace(email))
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
}

// Locked reports how long email stays locked. Zero means it may log in.
func (l *LockoutLimiter) Locked(ctx context.Context, email string) (time.Duration, error) {
	key := l.keyFor(email)
	if key == "" {
		return 0, nil
	}
	var (
		count *redis.StringCmd
		ttl   *redis.DurationCmd
	)
	_, err := l.redis.Pipelined(ctx, func(p redis.Pipeliner) error {
		count = p.Get(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, unavailable(err)
	}
	n, err := count.Int()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, unavailable(err)
	case n < l.cfg.Threshold:
		return 0, nil
	}
	// A lock without a TTL is reported as a full period.
	if remaining := ttl.Val(); remaining > 0 {
		return remaining, nil
	}
	return l.cfg.Duration, nil
}

// RecordFailure counts one failed password check and reports whether the
// threshold has now been reached.
func (l *LockoutLimiter) RecordFailure(ctx context.Context, email string) (bool, error) {
	key := l.keyFor(email)
	if key == "" {
		return false, nil
	}
	n, err := recordFailureLua.Run(ctx, l.redis, []string{key}, l.cfg.Duration.Milliseconds()).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return n >= l.cfg.Threshold, nil
}

// Reset clears the counter after a successful login or an admin unlock.
func (l *LockoutLimiter) Reset(ctx context.Context, email string) error {
	key := l.keyFor(email)
	if key == "" {
		return nil
	}
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
