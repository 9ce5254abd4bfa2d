package blogAuth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/blogAuth/password"
)

// Config is the full engine configuration. Start from [DefaultConfig] and
// override fields; Build calls Validate.
type Config struct {
	JWT            JWTConfig
	Session        SessionConfig
	Password       PasswordConfig
	RateLimit      RateLimitConfig
	Lockout        LockoutConfig
	Metrics        MetricsConfig
	ValidationMode ValidationMode
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the refresh slot and blacklist.
type SessionConfig struct {
	RedisPrefix string
	// BlacklistOnLogout revokes the presented access token on logout.
	BlacklistOnLogout bool
	// RotateRefreshTokens issues a new refresh token on every refresh and
	// invalidates the presented one.
	RotateRefreshTokens bool
	// MismatchWindow is how long presentations of superseded refresh tokens are counted.
	MismatchWindow time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and the strength policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool

	MinLength    int
	MaxLength    int
	RequireUpper bool
	RequireLower bool
	RequireDigit bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RatePolicy is a fixed-window budget. A zero Limit disables the class.
type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds the per-class request budgets.
type RateLimitConfig struct {
	Enabled        bool
	RedisPrefix    string
	Login          RatePolicy
	RegisterCode   RatePolicy
	Refresh        RatePolicy
	PasswordChange RatePolicy
}

// LockoutConfig locks an email for Duration after Threshold failed passwords.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// ValidationMode selects how much Validate checks.
type ValidationMode int

const (
	// ModeInherit uses the engine's configured mode.
	ModeInherit ValidationMode = -1
	// ModeJWTOnly checks signature and expiry only. No Redis round-trip.
	ModeJWTOnly ValidationMode = iota - 1
	// ModeStrict also checks the blacklist and fails closed.
	ModeStrict
)

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults without key material.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        5 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:         "bs",
			BlacklistOnLogout:   true,
			RotateRefreshTokens: false,
			MismatchWindow:      24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			MinLength:      8,
			MaxLength:      128,
			RequireUpper:   true,
			RequireLower:   true,
			RequireDigit:   true,
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			RedisPrefix:    "rl",
			Login:          RatePolicy{Limit: 5, Window: time.Minute},
			RegisterCode:   RatePolicy{Limit: 3, Window: time.Hour},
			Refresh:        RatePolicy{Limit: 30, Window: time.Minute},
			PasswordChange: RatePolicy{Limit: 5, Window: 15 * time.Minute},
		},
		Lockout: LockoutConfig{
			Enabled:   true,
			Threshold: 10,
			Duration:  15 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		ValidationMode: ModeStrict,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects lifetimes, key material, cost parameters and rate
// policies that would make the engine insecure or inoperable.
func (c *Config) Validate() error {
	if c.ValidationMode != ModeJWTOnly && c.ValidationMode != ModeStrict {
		return errors.New("ValidationMode must be ModeJWTOnly or ModeStrict")
	}
	return errors.Join(
		c.JWT.validate(),
		c.Session.validate(),
		c.Password.validate(),
		c.RateLimit.validate(),
		c.Lockout.validate(),
	)
}

func (j JWTConfig) validate() error {
	if j.AccessTTL <= 0 || j.RefreshTTL <= j.AccessTTL {
		return fmt.Errorf("JWT: need 0 < AccessTTL < RefreshTTL, got %v and %v", j.AccessTTL, j.RefreshTTL)
	}
	switch j.SigningMethod {
	case "hs256":
		if len(j.PrivateKey) < 32 {
			return errors.New("JWT: hs256 secret must be at least 32 bytes")
		}
	case "ed25519":
		if len(j.PrivateKey) == 0 || (len(j.PublicKey) == 0 && len(j.VerifyKeys) == 0) {
			return errors.New("JWT: ed25519 needs PrivateKey and PublicKey or VerifyKeys")
		}
	default:
		return fmt.Errorf("JWT: unsupported signing method %q", j.SigningMethod)
	}
	return nil
}

func (s SessionConfig) validate() error {
	if s.RedisPrefix == "" {
		return errors.New("Session: RedisPrefix must be set")
	}
	if s.MismatchWindow < 0 {
		return errors.New("Session: MismatchWindow must be >= 0")
	}
	return nil
}

func (p PasswordConfig) validate() error {
	if err := p.hashConfig().Validate(); err != nil {
		return fmt.Errorf("Password: %w", err)
	}
	if p.MinLength < 1 {
		return errors.New("Password: MinLength must be >= 1")
	}
	if p.MaxLength != 0 && p.MaxLength < p.MinLength {
		return errors.New("Password: MaxLength must be >= MinLength")
	}
	return nil
}

func (p PasswordConfig) hashConfig() password.Config {
	return password.Config{
		Memory:      p.Memory,
		Time:        p.Time,
		Parallelism: p.Parallelism,
		SaltLength:  p.SaltLength,
		KeyLength:   p.KeyLength,
	}
}

func (p PasswordConfig) policy() password.Policy {
	return password.Policy{
		MinLength:    p.MinLength,
		MaxLength:    p.MaxLength,
		RequireUpper: p.RequireUpper,
		RequireLower: p.RequireLower,
		RequireDigit: p.RequireDigit,
	}
}

func (r RateLimitConfig) policies() map[RateClass]RatePolicy {
	return map[RateClass]RatePolicy{
		RateClassLogin:          r.Login,
		RateClassRegisterCode:   r.RegisterCode,
		RateClassRefresh:        r.Refresh,
		RateClassPasswordChange: r.PasswordChange,
	}
}

func (r RateLimitConfig) validate() error {
	if !r.Enabled {
		return nil
	}
	var errs []error
	for class, p := range r.policies() {
		if p.Limit < 0 || (p.Limit > 0 && p.Window <= 0) {
			errs = append(errs, fmt.Errorf("RateLimit %s: need Limit >= 0 and a positive Window, got %d/%v", class, p.Limit, p.Window))
		}
	}
	return errors.Join(errs...)
}

func (l LockoutConfig) validate() error {
	if l.Enabled && (l.Threshold <= 0 || l.Duration <= 0) {
		return errors.New("Lockout: Threshold and Duration must be > 0")
	}
	return nil
}
