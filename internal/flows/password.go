package flows

import (
	"context"
	"errors"
	"time"
)

// PasswordFailureKind classifies change-password failures for root-level mapping.
type PasswordFailureKind int

const (
	PasswordFailureNone PasswordFailureKind = iota
	PasswordFailureInvalidInput
	PasswordFailureUserLookup
	PasswordFailureAccountStatus
	PasswordFailureInvalidOld
	PasswordFailureReuse
	PasswordFailurePolicy
	PasswordFailureHash
	PasswordFailureUpdate
	PasswordFailureInvalidate
)

// ChangePasswordRequest is the input of RunChangePassword.
type ChangePasswordRequest struct {
	SubjectID   string
	OldPassword string
	NewPassword string
	AccessToken string
}

// PasswordResult reports the outcome of a password change.
type PasswordResult struct {
	Failure PasswordFailureKind
	Err     error
}

// PasswordDeps captures change-password flow dependencies.
type PasswordDeps struct {
	GetUserByID        func(ctx context.Context, userID string) (User, error)
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error
	UserNotFound       error
	Hasher             Hasher
	CheckPolicy        func(string) error
	Tokens             TokenCodec
	Store              RefreshStore
	Blacklist          Blacklist
	HashToken          func(string) string
	Now                func() time.Time
}

// RunChangePassword verifies the old password, enforces the strength policy,
// persists the new hash and ends the session: the refresh slot is deleted
// and the presented access token is revoked.
func RunChangePassword(ctx context.Context, req ChangePasswordRequest, deps PasswordDeps) PasswordResult {
	if req.SubjectID == "" || req.OldPassword == "" || req.NewPassword == "" {
		return PasswordResult{Failure: PasswordFailureInvalidInput}
	}

	user, err := deps.GetUserByID(ctx, req.SubjectID)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			return PasswordResult{Failure: PasswordFailureAccountStatus, Err: err}
		}
		return PasswordResult{Failure: PasswordFailureUserLookup, Err: err}
	}
	if !user.Active {
		return PasswordResult{Failure: PasswordFailureAccountStatus}
	}

	ok, err := deps.Hasher.Verify(req.OldPassword, user.PasswordHash)
	if err != nil || !ok {
		return PasswordResult{Failure: PasswordFailureInvalidOld, Err: err}
	}

	if same, err := deps.Hasher.Verify(req.NewPassword, user.PasswordHash); err == nil && same {
		return PasswordResult{Failure: PasswordFailureReuse}
	}

	if deps.CheckPolicy != nil {
		if err := deps.CheckPolicy(req.NewPassword); err != nil {
			return PasswordResult{Failure: PasswordFailurePolicy, Err: err}
		}
	}

	newHash, err := deps.Hasher.Hash(req.NewPassword)
	if err != nil {
		return PasswordResult{Failure: PasswordFailureHash, Err: err}
	}
	if err := deps.UpdatePasswordHash(ctx, req.SubjectID, newHash); err != nil {
		return PasswordResult{Failure: PasswordFailureUpdate, Err: err}
	}

	var errs []error
	if err := deps.Store.DeleteRefreshToken(ctx, req.SubjectID); err != nil {
		errs = append(errs, err)
	}
	if req.AccessToken != "" {
		if claims, err := deps.Tokens.ParseAccess(req.AccessToken); err == nil && claims.SubjectID() == req.SubjectID {
			if err := blacklistToken(ctx, deps.Blacklist, deps.HashToken, deps.Now, req.AccessToken, claims); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return PasswordResult{Failure: PasswordFailureInvalidate, Err: errors.Join(errs...)}
	}

	return PasswordResult{}
}
