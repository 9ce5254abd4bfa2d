package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidCredentials
	LoginFailureLocked
	LoginFailureUserLookup
	LoginFailureAccountDisabled
	LoginFailureIssueToken
	LoginFailureStore
)

// LoginResult carries either the issued token pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Reason       string
	User         User
	AccessToken  string
	RefreshToken string
	Upgraded     bool
	// RetryAfter is how long a locked account stays locked.
	RetryAfter time.Duration
}

// LockoutGuard is satisfied by *limiters.LockoutLimiter.
type LockoutGuard interface {
	Locked(ctx context.Context, identifier string) (time.Duration, error)
	RecordFailure(ctx context.Context, identifier string) (bool, error)
	Reset(ctx context.Context, identifier string) error
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	GetUserByEmail     func(ctx context.Context, email string) (User, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error
	UserNotFound       error
	Hasher             Hasher
	DummyHash          string
	UpgradeOnLogin     bool
	Tokens             TokenCodec
	Store              RefreshStore
	Lockout            LockoutGuard
	Warn               func(string, ...any)
}

// RunLogin verifies credentials and opens the single session of the subject.
// Unknown email and wrong password produce the same failure kind, and a dummy
// hash is verified for unknown emails so both paths cost the same.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{Failure: LoginFailureInvalidCredentials, Reason: "empty_input"}
	}

	if deps.Lockout != nil {
		remaining, err := deps.Lockout.Locked(ctx, email)
		if err != nil {
			return LoginResult{Failure: LoginFailureStore, Err: err, Reason: "lockout_unavailable"}
		}
		if remaining > 0 {
			return LoginResult{Failure: LoginFailureLocked, Reason: "locked", RetryAfter: remaining}
		}
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			if deps.DummyHash != "" {
				_, _ = deps.Hasher.Verify(password, deps.DummyHash)
			}
			recordFailure(ctx, email, deps)
			return LoginResult{Failure: LoginFailureInvalidCredentials, Reason: "unknown_email"}
		}
		return LoginResult{Failure: LoginFailureUserLookup, Err: err, Reason: "user_lookup"}
	}

	ok, err := deps.Hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		recordFailure(ctx, email, deps)
		reason := "bad_password"
		if err != nil {
			reason = "unreadable_hash"
		}
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err, Reason: reason, User: user}
	}

	if !user.Active {
		return LoginResult{Failure: LoginFailureAccountDisabled, Reason: "account_disabled", User: user}
	}

	access, err := deps.Tokens.CreateAccess(user.ID, user.Role)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueToken, Err: err, Reason: "issue_access", User: user}
	}
	refresh, err := deps.Tokens.CreateRefresh(user.ID, user.Role)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssueToken, Err: err, Reason: "issue_refresh", User: user}
	}

	if err := deps.Store.PutRefreshToken(ctx, user.ID, refresh, deps.Tokens.RefreshTTL()); err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err, Reason: "store_refresh", User: user}
	}

	if deps.Lockout != nil {
		if err := deps.Lockout.Reset(ctx, email); err != nil {
			warn(deps.Warn, "lockout reset failed", "subject_id", user.ID)
		}
	}

	result := LoginResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
	}
	if deps.UpgradeOnLogin && deps.UpdatePasswordHash != nil {
		result.Upgraded = upgradeHash(ctx, user, password, deps)
	}
	return result
}

func recordFailure(ctx context.Context, email string, deps LoginDeps) {
	if deps.Lockout == nil {
		return
	}
	if _, err := deps.Lockout.RecordFailure(ctx, email); err != nil {
		warn(deps.Warn, "lockout record failed")
	}
}

// upgradeHash re-hashes the password when the stored hash is legacy or weak.
// Failures are logged and never fail the login.
func upgradeHash(ctx context.Context, user User, password string, deps LoginDeps) bool {
	needs, err := deps.Hasher.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return false
	}
	next, err := deps.Hasher.Hash(password)
	if err != nil {
		warn(deps.Warn, "password rehash failed", "subject_id", user.ID)
		return false
	}
	if err := deps.UpdatePasswordHash(ctx, user.ID, next); err != nil {
		warn(deps.Warn, "password hash upgrade not persisted", "subject_id", user.ID)
		return false
	}
	return true
}

func warn(fn func(string, ...any), msg string, kv ...any) {
	if fn != nil {
		fn(msg, kv...)
	}
}
