package flows

import (
	"context"
	"errors"
	"time"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureToken
	RefreshFailureMismatch
	RefreshFailureAccountStatus
	RefreshFailureUserLookup
	RefreshFailureIssueAccess
	RefreshFailureStore
)

// RefreshResult carries either the new token(s) or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	SubjectID    string
	Role         string
	AccessToken  string
	RefreshToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	GetUserByID    func(ctx context.Context, userID string) (User, error)
	UserNotFound   error
	Tokens         TokenCodec
	Store          RefreshStore
	Rotate         bool
	MismatchWindow time.Duration
	NotFound       error
	Mismatch       error
	Warn           func(string, ...any)
}

// RunRefresh exchanges a refresh token for a new access token. The presented
// token must be signed, unexpired and byte-equal to the subject's stored slot.
// With Rotate set the slot is swapped atomically and a new refresh token is
// returned; otherwise the stored token is left untouched.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.Tokens.ParseRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureToken, Err: err}
	}
	subjectID := claims.SubjectID()

	if !deps.Rotate {
		ok, err := deps.Store.MatchRefreshToken(ctx, subjectID, refreshToken)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureStore, Err: err, SubjectID: subjectID}
		}
		if !ok {
			trackMismatch(ctx, subjectID, deps)
			return RefreshResult{Failure: RefreshFailureMismatch, SubjectID: subjectID}
		}
	}

	user, err := deps.GetUserByID(ctx, subjectID)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			if err := deps.Store.DeleteRefreshToken(ctx, subjectID); err != nil {
				warn(deps.Warn, "refresh slot cleanup failed", "subject_id", subjectID)
			}
			return RefreshResult{Failure: RefreshFailureAccountStatus, Err: err, SubjectID: subjectID}
		}
		return RefreshResult{Failure: RefreshFailureUserLookup, Err: err, SubjectID: subjectID}
	}
	if !user.Active {
		if err := deps.Store.DeleteRefreshToken(ctx, subjectID); err != nil {
			warn(deps.Warn, "refresh slot cleanup failed", "subject_id", subjectID)
		}
		return RefreshResult{Failure: RefreshFailureAccountStatus, SubjectID: subjectID}
	}

	result := RefreshResult{SubjectID: subjectID, Role: user.Role}

	if deps.Rotate {
		next, err := deps.Tokens.CreateRefresh(subjectID, user.Role)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, SubjectID: subjectID}
		}
		if err := deps.Store.RotateRefreshToken(ctx, subjectID, refreshToken, next, deps.Tokens.RefreshTTL()); err != nil {
			if errors.Is(err, deps.Mismatch) || errors.Is(err, deps.NotFound) {
				trackMismatch(ctx, subjectID, deps)
				return RefreshResult{Failure: RefreshFailureMismatch, Err: err, SubjectID: subjectID}
			}
			return RefreshResult{Failure: RefreshFailureStore, Err: err, SubjectID: subjectID}
		}
		result.RefreshToken = next
	}

	access, err := deps.Tokens.CreateAccess(subjectID, user.Role)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, SubjectID: subjectID}
	}
	result.AccessToken = access
	return result
}

// trackMismatch counts superseded-token presentations. Counting is
// best-effort and never changes the outcome.
func trackMismatch(ctx context.Context, subjectID string, deps RefreshDeps) {
	n, err := deps.Store.TrackRefreshMismatch(ctx, subjectID, deps.MismatchWindow)
	if err != nil {
		warn(deps.Warn, "refresh mismatch tracking failed", "subject_id", subjectID)
		return
	}
	if n > 1 {
		warn(deps.Warn, "repeated superseded refresh token", "subject_id", subjectID, "count", n)
	}
}
