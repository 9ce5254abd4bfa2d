package blogAuth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is returned for an unknown email, an empty input or
	// a wrong password. The three cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned after a correct password for a disabled or locked account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrInvalidOrExpiredRefreshToken covers every refresh token rejection:
	// bad signature, expiry, wrong kind, or a token that is not the stored one.
	ErrInvalidOrExpiredRefreshToken = errors.New("invalid or expired refresh token")
	// ErrTokenBlacklisted is returned by strict validation for a revoked access token.
	ErrTokenBlacklisted = errors.New("token blacklisted")
	// ErrTokenExpired is returned by validation for an access token past its exp claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrUnauthorized is returned by validation for any other invalid access token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited is returned when a rate window or the failed-login lockout denies a request.
	ErrRateLimited = errors.New("rate limited")
	// ErrWeakPassword is returned when a new password fails the strength policy or repeats the old one.
	ErrWeakPassword = errors.New("weak password")
	// ErrPasswordReuse is joined with ErrWeakPassword when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrInvalidPassword is returned by ChangePassword when the old password does not verify.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrStoreUnavailable is returned when Redis cannot answer. Authentication fails closed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUserNotFound must be returned (or wrapped) by a UserProvider for an unknown user.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionInvalidationFailed is joined with the cause when a password was
	// changed but the old session could not be fully revoked.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrEngineNotReady is returned by a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// RateLimitError is an [ErrRateLimited] that knows when the caller may retry.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter returns the wait carried by a [RateLimitError] in err's chain,
// or zero.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
