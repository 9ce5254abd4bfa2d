package blogAuth

import (
	"context"
	"time"
)

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus uint8

const (
	AccountActive AccountStatus = iota
	AccountDisabled
	AccountLocked
)

// String returns the lowercase status name.
func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountDisabled:
		return "disabled"
	case AccountLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// UserRecord is the credential record owned by the user-management
// collaborator. The engine never creates users.
type UserRecord struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Status       AccountStatus
}

// UserProvider is the interface callers implement to connect the engine to
// their user database. Lookups of unknown users must return an error that
// matches [ErrUserNotFound] with errors.Is.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

// UserView is the public part of a user returned by Login.
type UserView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginResult is returned by [Engine.Login].
type LoginResult struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	User         UserView `json:"user"`
}

// RefreshResult is returned by [Engine.Refresh]. RefreshToken is empty unless
// refresh rotation is enabled.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// AuthResult is the authenticated identity handed to downstream handlers.
type AuthResult struct {
	SubjectID string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// RateClass names a rate-limited endpoint family.
type RateClass string

const (
	RateClassLogin          RateClass = "login"
	RateClassRegisterCode   RateClass = "register_code"
	RateClassRefresh        RateClass = "refresh"
	RateClassPasswordChange RateClass = "password_change"
)

// RateDecision is returned by [Engine.AllowRequest].
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// HealthStatus is returned by [Engine.Health].
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
	ActiveSessions int
}
