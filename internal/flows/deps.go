package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/blogAuth/jwt"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login    LoginDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
	Password PasswordDeps
	Validate ValidateDeps
}

// User is the credential view the flows need. The root package converts its
// public record type into this shape.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Active       bool
}

// TokenCodec is satisfied by *jwt.Manager.
type TokenCodec interface {
	CreateAccess(subjectID, role string) (string, error)
	CreateRefresh(subjectID, role string) (string, error)
	ParseAccess(token string) (*jwt.Claims, error)
	ParseRefresh(token string) (*jwt.Claims, error)
	RefreshTTL() time.Duration
}

// RefreshStore is the refresh-slot half of *session.Store.
type RefreshStore interface {
	PutRefreshToken(ctx context.Context, subjectID, token string, ttl time.Duration) error
	MatchRefreshToken(ctx context.Context, subjectID, presented string) (bool, error)
	DeleteRefreshToken(ctx context.Context, subjectID string) error
	RotateRefreshToken(ctx context.Context, subjectID, presented, next string, ttl time.Duration) error
	TrackRefreshMismatch(ctx context.Context, subjectID string, window time.Duration) (int64, error)
}

// Blacklist is the revocation half of *session.Store.
type Blacklist interface {
	Blacklist(ctx context.Context, tokenHash string, ttl time.Duration) error
	IsBlacklisted(ctx context.Context, tokenHash string) (bool, error)
}

// Hasher is satisfied by password.Hasher implementations.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password string, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// blacklistToken revokes a parsed access token for the rest of its lifetime.
func blacklistToken(ctx context.Context, bl Blacklist, hash func(string) string, now func() time.Time, token string, claims *jwt.Claims) error {
	if bl == nil || token == "" || claims == nil {
		return nil
	}
	return bl.Blacklist(ctx, hash(token), claims.Remaining(now()))
}
