package flows

import (
	"context"
	"time"
)

// LogoutFailureKind classifies logout flow failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureToken
	LogoutFailureStore
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Tokens            TokenCodec
	Store             RefreshStore
	Blacklist         Blacklist
	HashToken         func(string) string
	Now               func() time.Time
	BlacklistOnLogout bool
	Warn              func(string, ...any)
}

// LogoutResult reports the outcome of a logout.
type LogoutResult struct {
	Failure     LogoutFailureKind
	Err         error
	SubjectID   string
	Blacklisted bool
}

// RunLogout deletes the refresh slot of subjectID and, when accessToken is
// given, revokes it for its remaining lifetime. A token that no longer
// verifies or belongs to another subject is not written to the blacklist.
func RunLogout(ctx context.Context, subjectID, accessToken string, deps LogoutDeps) LogoutResult {
	if err := deps.Store.DeleteRefreshToken(ctx, subjectID); err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err, SubjectID: subjectID}
	}
	if accessToken == "" || !deps.BlacklistOnLogout {
		return LogoutResult{SubjectID: subjectID}
	}

	claims, err := deps.Tokens.ParseAccess(accessToken)
	if err != nil {
		return LogoutResult{SubjectID: subjectID}
	}
	if claims.SubjectID() != subjectID {
		warn(deps.Warn, "logout token subject mismatch", "subject_id", subjectID)
		return LogoutResult{SubjectID: subjectID}
	}
	if err := blacklistToken(ctx, deps.Blacklist, deps.HashToken, deps.Now, accessToken, claims); err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err, SubjectID: subjectID}
	}
	return LogoutResult{SubjectID: subjectID, Blacklisted: true}
}

// RunLogoutByAccessToken resolves the subject from a valid access token and
// logs it out.
func RunLogoutByAccessToken(ctx context.Context, accessToken string, deps LogoutDeps) LogoutResult {
	claims, err := deps.Tokens.ParseAccess(accessToken)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureToken, Err: err}
	}
	return RunLogout(ctx, claims.SubjectID(), accessToken, deps)
}
