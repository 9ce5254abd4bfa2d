package blogAuth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/blogAuth/internal"
	"github.com/MrEthical07/blogAuth/internal/flows"
	"github.com/MrEthical07/blogAuth/internal/limiters"
	"github.com/MrEthical07/blogAuth/internal/rate"
	"github.com/MrEthical07/blogAuth/jwt"
	"github.com/MrEthical07/blogAuth/password"
	"github.com/MrEthical07/blogAuth/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config       Config
	redis        redis.UniversalClient
	userProvider UserProvider
	logger       *zap.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig]. Key material must still
// be supplied through WithConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration with a deep copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client shared by the session store and the limiters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the credential collaborator.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithLogger sets the structured logger. A nil logger discards output.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters exposed by MetricsSnapshot.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, constructs every component and wires the
// flow dependencies. A Builder can be built only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		logger:       logger.Named("blogauth"),
		metrics:      NewMetrics(cfg.Metrics),
	}

	// -------- SESSION STORE --------
	engine.sessionStore = session.NewStore(b.redis, cfg.Session.RedisPrefix)

	// -------- LIMITERS --------
	if cfg.RateLimit.Enabled {
		policies := make(map[rate.Class]rate.Policy)
		for class, p := range cfg.RateLimit.policies() {
			policies[rate.Class(class)] = rate.Policy(p)
		}
		engine.rateLimiter = rate.New(b.redis, rate.Config{Prefix: cfg.RateLimit.RedisPrefix, Policies: policies})
	}
	engine.lockout = limiters.NewLockoutLimiter(b.redis, limiters.LockoutConfig{
		Enabled:   cfg.Lockout.Enabled,
		Threshold: cfg.Lockout.Threshold,
		Duration:  cfg.Lockout.Duration,
	})

	// -------- PASSWORDS --------
	ph, err := password.NewMulti(cfg.Password.hashConfig())
	if err != nil {
		return nil, err
	}
	engine.passwordHash = ph
	engine.passwordPolicy = cfg.Password.policy()

	dummySecret, err := internal.RandomSecret(24)
	if err != nil {
		return nil, err
	}
	dummyHash, err := ph.Hash(dummySecret)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- FLOWS --------
	warn := engine.logger.Sugar().Warnw
	now := time.Now
	engine.flows = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			GetUserByEmail:     engine.flowUserByEmail,
			UpdatePasswordHash: engine.userProvider.UpdatePasswordHash,
			UserNotFound:       ErrUserNotFound,
			Hasher:             ph,
			DummyHash:          dummyHash,
			UpgradeOnLogin:     cfg.Password.UpgradeOnLogin,
			Tokens:             jm,
			Store:              engine.sessionStore,
			Lockout:            engine.lockout,
			Warn:               warn,
		},
		Refresh: flows.RefreshDeps{
			GetUserByID:    engine.flowUserByID,
			UserNotFound:   ErrUserNotFound,
			Tokens:         jm,
			Store:          engine.sessionStore,
			Rotate:         cfg.Session.RotateRefreshTokens,
			MismatchWindow: cfg.Session.MismatchWindow,
			NotFound:       session.ErrNotFound,
			Mismatch:       session.ErrRefreshMismatch,
			Warn:           warn,
		},
		Logout: flows.LogoutDeps{
			Tokens:            jm,
			Store:             engine.sessionStore,
			Blacklist:         engine.sessionStore,
			HashToken:         session.HashToken,
			Now:               now,
			BlacklistOnLogout: cfg.Session.BlacklistOnLogout,
			Warn:              warn,
		},
		Password: flows.PasswordDeps{
			GetUserByID:        engine.flowUserByID,
			UpdatePasswordHash: engine.userProvider.UpdatePasswordHash,
			UserNotFound:       ErrUserNotFound,
			Hasher:             ph,
			CheckPolicy:        engine.passwordPolicy.Check,
			Tokens:             jm,
			Store:              engine.sessionStore,
			Blacklist:          engine.sessionStore,
			HashToken:          session.HashToken,
			Now:                now,
		},
		Validate: flows.ValidateDeps{
			ParseAccess: jm.ParseAccess,
			Blacklist:   engine.sessionStore,
			HashToken:   session.HashToken,
		},
	})

	b.built = true

	return engine, nil
}

func (e *Engine) flowUserByEmail(ctx context.Context, email string) (flows.User, error) {
	rec, err := e.userProvider.GetUserByEmail(ctx, email)
	if err != nil {
		return flows.User{}, err
	}
	return toFlowUser(rec), nil
}

func (e *Engine) flowUserByID(ctx context.Context, userID string) (flows.User, error) {
	rec, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		return flows.User{}, err
	}
	return toFlowUser(rec), nil
}

func toFlowUser(rec UserRecord) flows.User {
	return flows.User{
		ID:           rec.ID,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Role:         rec.Role,
		Active:       rec.Status == AccountActive,
	}
}
