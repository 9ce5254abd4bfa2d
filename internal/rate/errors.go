package rate

import "errors"

var (
	// ErrRateLimited is returned by Allow when the window budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter transport failures. The limiter fails closed.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
