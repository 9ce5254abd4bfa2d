package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWS algorithm used for both token kinds.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over an Ed25519 key pair.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// Kind separates access tokens from refresh tokens. It is carried in the
// "typ" claim so one kind can never be accepted in place of the other.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Config defines signing keys, lifetimes and validation rules for a Manager.
// For HS256 PrivateKey is the shared secret. For Ed25519 a manager without a
// PrivateKey can only verify.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration // default 10m
	KeyID         string
	VerifyKeys    map[string][]byte // kid -> key, for verifying during key rollover
}

// Manager issues and verifies access and refresh tokens. It performs no I/O
// and is safe for concurrent use.
type Manager struct {
	config Config
	keys   *keyring
	parser *jwt.Parser
	now    func() time.Time
}

// Claims is the payload of both token kinds.
type Claims struct {
	Role string `json:"role,omitempty"`
	Kind Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// SubjectID returns the "sub" claim.
func (c *Claims) SubjectID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// Remaining returns how long the token stays valid after now. It is zero for
// tokens without an expiry or already expired.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c == nil || c.ExpiresAt == nil {
		return 0
	}
	d := c.ExpiresAt.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// NewManager validates lifetimes, leeway and key material and returns an error
// when any of them is unusable for the selected signing method.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0:
		return nil, errors.New("token lifetimes must be positive")
	case cfg.RefreshTTL <= cfg.AccessTTL:
		return nil, errors.New("refresh TTL must exceed access TTL")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("leeway must be within [0, 2m]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("MaxFutureIAT must be within (0, 24h]")
	}

	keys, err := newKeyring(cfg)
	if err != nil {
		return nil, err
	}
	cfg.KeyID = keys.kid

	m := &Manager{config: cfg, keys: keys, now: time.Now}
	m.parser = jwt.NewParser(m.parserOptions()...)
	return m, nil
}

func (j *Manager) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{j.keys.method.Alg()}),
		jwt.WithExpirationRequired(),
		// Indirect so tests can swap j.now after construction.
		jwt.WithTimeFunc(func() time.Time { return j.now() }),
	}
	if j.config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if j.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.config.Issuer))
	}
	if j.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(j.config.Audience))
	}
	return opts
}

// AccessTTL returns the configured access token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// CreateAccess signs a short-lived access token for subjectID carrying role.
func (j *Manager) CreateAccess(subjectID, role string) (string, error) {
	return j.CreateWithTTL(KindAccess, subjectID, role, j.config.AccessTTL)
}

// CreateRefresh signs a long-lived refresh token for subjectID carrying role.
func (j *Manager) CreateRefresh(subjectID, role string) (string, error) {
	return j.CreateWithTTL(KindRefresh, subjectID, role, j.config.RefreshTTL)
}

// CreateWithTTL signs a token of the given kind with an explicit lifetime.
// Every token gets a random jti, so two tokens issued within the same second
// for the same subject are still distinct strings.
func (j *Manager) CreateWithTTL(kind Kind, subjectID, role string, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", errors.New("subject is required")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}

	now := j.now()
	claims := Claims{
		Role: role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	if j.keys.sign == nil {
		return "", errNoSigningKey
	}
	token := jwt.NewWithClaims(j.keys.method, claims)
	if j.keys.kid != "" {
		token.Header["kid"] = j.keys.kid
	}
	return token.SignedString(j.keys.sign)
}

// ParseAccess verifies tokenStr as an access token.
func (j *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return j.Parse(tokenStr, KindAccess)
}

// ParseRefresh verifies tokenStr as a refresh token.
func (j *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return j.Parse(tokenStr, KindRefresh)
}

// Parse checks signature, algorithm, expiry, issuer, audience and the token
// kind. Failures wrap exactly one of ErrExpired, ErrMalformed,
// ErrSignatureInvalid, ErrWrongKind or ErrInvalid.
func (j *Manager) Parse(tokenStr string, kind Kind) (*Claims, error) {
	token, err := j.parser.ParseWithClaims(tokenStr, &Claims{}, j.keys.lookup)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, jwt.ErrTokenInvalidClaims)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalid)
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongKind, claims.Kind, kind)
	}
	if iat := claims.IssuedAt; iat != nil && iat.After(j.now().Add(j.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrInvalid)
	}
	return claims, nil
}

// DecodeUnsafe reads claims without verifying the signature. The result must
// only be used for logging and diagnostics. It returns nil for garbage input.
func DecodeUnsafe(tokenStr string) *Claims {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil
	}
	return claims
}
