package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Class names a family of endpoints sharing one policy.
type Class string

const (
	ClassLogin          Class = "login"
	ClassRegisterCode   Class = "register_code"
	ClassRefresh        Class = "refresh"
	ClassPasswordChange Class = "password_change"
)

// Policy is a fixed window budget. A zero Limit disables the class.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Config holds rate limiter tuning parameters.
type Config struct {
	Prefix   string
	Policies map[Class]Policy
}

// DefaultPolicies returns the stock per-class budgets.
func DefaultPolicies() map[Class]Policy {
	return map[Class]Policy{
		ClassLogin:          {Limit: 5, Window: time.Minute},
		ClassRegisterCode:   {Limit: 3, Window: time.Hour},
		ClassRefresh:        {Limit: 30, Window: time.Minute},
		ClassPasswordChange: {Limit: 5, Window: 15 * time.Minute},
	}
}

// Decision is the outcome of one TryAcquire call.
type Decision struct {
	Allowed    bool
	Count      int64
	Limit      int
	RetryAfter time.Duration
}

// KEYS[1] counter, ARGV[1] window in ms. Returns {count, pttl}.
const acquireScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var acquireLua = redis.NewScript(acquireScript)

// Limiter enforces per-class fixed-window budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client. Classes
// missing from cfg.Policies are unlimited.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	if cfg.Policies == nil {
		cfg.Policies = DefaultPolicies()
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *Limiter) key(class Class, key string) string {
	return l.config.Prefix + ":" + string(class) + ":" + key
}

// Policy returns the configured policy of class and whether it is enforced.
func (l *Limiter) Policy(class Class) (Policy, bool) {
	p, ok := l.config.Policies[class]
	if !ok || p.Limit <= 0 || p.Window <= 0 {
		return Policy{}, false
	}
	return p, true
}

// TryAcquire counts one request for key under class. The request is allowed
// while the count stays within the class limit; once denied, RetryAfter is the
// time left in the current window.
func (l *Limiter) TryAcquire(ctx context.Context, class Class, key string) (Decision, error) {
	policy, ok := l.Policy(class)
	if !ok {
		return Decision{Allowed: true}, nil
	}

	res, err := acquireLua.Run(ctx, l.redis, []string{l.key(class, key)}, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("%w: unexpected script reply", ErrRedisUnavailable)
	}

	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	d := Decision{
		Allowed: count <= int64(policy.Limit),
		Count:   count,
		Limit:   policy.Limit,
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}

// Allow is TryAcquire reduced to an error: nil, [ErrRateLimited] or a wrapped
// [ErrRedisUnavailable].
func (l *Limiter) Allow(ctx context.Context, class Class, key string) error {
	d, err := l.TryAcquire(ctx, class, key)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter of key under class.
func (l *Limiter) Reset(ctx context.Context, class Class, key string) error {
	if err := l.redis.Del(ctx, l.key(class, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
