package blogAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/blogAuth/internal/flows"
	"github.com/MrEthical07/blogAuth/internal/limiters"
	"github.com/MrEthical07/blogAuth/internal/rate"
	"github.com/MrEthical07/blogAuth/jwt"
	"github.com/MrEthical07/blogAuth/password"
	"github.com/MrEthical07/blogAuth/session"
	"go.uber.org/zap"
)

// Engine is the authentication service. Build it with [New]; it is safe for
// concurrent use and holds no per-request state.
type Engine struct {
	config         Config
	sessionStore   *session.Store
	rateLimiter    *rate.Limiter
	lockout        *limiters.LockoutLimiter
	passwordHash   *password.Multi
	passwordPolicy password.Policy
	jwtManager     *jwt.Manager
	userProvider   UserProvider
	flows          flows.Service
	metrics        *Metrics
	logger         *zap.Logger
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// MetricsSnapshot returns a copy of every counter. Disabled metrics yield
// empty maps.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// tokenRef identifies a token in logs without revealing it.
func tokenRef(token string) string {
	if token == "" {
		return ""
	}
	return session.HashToken(token)[:12]
}

func storeUnavailable(err error) error {
	if err == nil {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Login verifies email and password and opens the subject's single session,
// replacing any previous refresh token. Unknown email, empty input and wrong
// password all return [ErrInvalidCredentials]. A disabled account returns
// [ErrAccountDisabled] only after the password verified.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Login(ctx, email, password)
	ip := ClientIPFromContext(ctx)

	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.logger.Info("login rejected", zap.String("reason", res.Reason), zap.String("ip", ip))
		return nil, ErrInvalidCredentials
	case flows.LoginFailureLocked:
		e.metricInc(MetricLoginLocked)
		e.logger.Warn("login locked", zap.String("ip", ip), zap.Duration("retry_after", res.RetryAfter))
		return nil, &RateLimitError{RetryAfter: res.RetryAfter}
	case flows.LoginFailureAccountDisabled:
		e.metricInc(MetricAccountDisabled)
		e.logger.Info("login for disabled account", zap.String("subject_id", res.User.ID), zap.String("ip", ip))
		return nil, ErrAccountDisabled
	case flows.LoginFailureUserLookup, flows.LoginFailureStore:
		e.metricInc(MetricStoreUnavailable)
		e.logger.Error("login store failure", zap.String("reason", res.Reason), zap.String("ip", ip), zap.Error(res.Err))
		return nil, storeUnavailable(res.Err)
	default:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("login failed", zap.String("reason", res.Reason), zap.Error(res.Err))
		return nil, res.Err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	if res.Upgraded {
		e.metricInc(MetricPasswordHashUpgraded)
	}
	e.logger.Info("login succeeded", zap.String("subject_id", res.User.ID), zap.String("ip", ip))

	return &LoginResult{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User: UserView{
			ID:    res.User.ID,
			Email: res.User.Email,
			Role:  res.User.Role,
		},
	}, nil
}

// Refresh exchanges the subject's current refresh token for a new access
// token. Any token that is not the one stored for its subject, including a
// superseded token from an earlier login, returns
// [ErrInvalidOrExpiredRefreshToken]. When rotation is enabled the result also
// carries the replacement refresh token.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := e.flows.Refresh(ctx, refreshToken)
	ip := ClientIPFromContext(ctx)

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureToken:
		e.metricInc(MetricRefreshFailure)
		reason := "invalid"
		if errors.Is(res.Err, jwt.ErrExpired) {
			reason = "expired"
		}
		e.logger.Info("refresh rejected", zap.String("reason", reason), zap.String("ip", ip))
		return nil, ErrInvalidOrExpiredRefreshToken
	case flows.RefreshFailureMismatch:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshSuperseded)
		e.logger.Info("refresh token superseded", zap.String("subject_id", res.SubjectID), zap.String("ip", ip))
		return nil, ErrInvalidOrExpiredRefreshToken
	case flows.RefreshFailureAccountStatus:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricSessionInvalidated)
		e.logger.Info("refresh for unavailable account", zap.String("subject_id", res.SubjectID))
		if res.Err != nil {
			return nil, ErrInvalidOrExpiredRefreshToken
		}
		return nil, ErrAccountDisabled
	case flows.RefreshFailureUserLookup, flows.RefreshFailureStore:
		e.metricInc(MetricStoreUnavailable)
		e.logger.Error("refresh store failure", zap.String("subject_id", res.SubjectID), zap.Error(res.Err))
		return nil, storeUnavailable(res.Err)
	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("refresh failed", zap.String("subject_id", res.SubjectID), zap.Error(res.Err))
		return nil, res.Err
	}

	e.metricInc(MetricRefreshSuccess)
	e.logger.Debug("refresh succeeded", zap.String("subject_id", res.SubjectID))

	return &RefreshResult{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}, nil
}

// Logout deletes the subject's refresh token and, when configured, revokes
// accessToken for its remaining lifetime. Logging out twice is not an error.
func (e *Engine) Logout(ctx context.Context, subjectID, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if subjectID == "" {
		return ErrUnauthorized
	}
	return e.finishLogout(e.flows.Logout(ctx, subjectID, accessToken), accessToken)
}

// LogoutByAccessToken resolves the subject from a valid access token and
// logs it out.
func (e *Engine) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.finishLogout(e.flows.LogoutByAccessToken(ctx, accessToken), accessToken)
}

func (e *Engine) finishLogout(res flows.LogoutResult, accessToken string) error {
	switch res.Failure {
	case flows.LogoutFailureNone:
	case flows.LogoutFailureToken:
		if errors.Is(res.Err, jwt.ErrExpired) {
			return ErrTokenExpired
		}
		return ErrUnauthorized
	default:
		e.metricInc(MetricStoreUnavailable)
		e.logger.Error("logout store failure", zap.String("subject_id", res.SubjectID), zap.Error(res.Err))
		return storeUnavailable(res.Err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	if res.Blacklisted {
		e.metricInc(MetricTokenBlacklisted)
	}
	e.logger.Info("logout",
		zap.String("subject_id", res.SubjectID),
		zap.Bool("blacklisted", res.Blacklisted),
		zap.String("token_ref", tokenRef(accessToken)),
	)
	return nil
}

// ChangePassword verifies oldPassword, enforces the strength policy and
// stores the new hash. The subject's refresh token is deleted and the
// presented access token revoked, so the session ends and the user must log
// in again. If the password changed but the session could not be fully
// revoked, the returned error matches [ErrSessionInvalidationFailed].
func (e *Engine) ChangePassword(ctx context.Context, subjectID, oldPassword, newPassword, accessToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.ChangePassword(ctx, flows.ChangePasswordRequest{
		SubjectID:   subjectID,
		OldPassword: oldPassword,
		NewPassword: newPassword,
		AccessToken: accessToken,
	})

	switch res.Failure {
	case flows.PasswordFailureNone:
	case flows.PasswordFailureInvalidInput:
		if subjectID == "" {
			return ErrUnauthorized
		}
		if oldPassword == "" {
			return ErrInvalidPassword
		}
		e.metricInc(MetricPasswordChangeRejected)
		return ErrWeakPassword
	case flows.PasswordFailureAccountStatus:
		if res.Err != nil {
			return ErrUnauthorized
		}
		return ErrAccountDisabled
	case flows.PasswordFailureInvalidOld:
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.logger.Info("password change rejected", zap.String("subject_id", subjectID), zap.String("reason", "invalid_old"))
		return ErrInvalidPassword
	case flows.PasswordFailureReuse:
		e.metricInc(MetricPasswordChangeRejected)
		return errors.Join(ErrWeakPassword, ErrPasswordReuse)
	case flows.PasswordFailurePolicy:
		e.metricInc(MetricPasswordChangeRejected)
		reason := strings.TrimPrefix(res.Err.Error(), password.ErrWeakPassword.Error()+": ")
		return fmt.Errorf("%w: %s", ErrWeakPassword, reason)
	case flows.PasswordFailureUserLookup:
		e.metricInc(MetricStoreUnavailable)
		e.logger.Error("password change lookup failed", zap.String("subject_id", subjectID), zap.Error(res.Err))
		return storeUnavailable(res.Err)
	case flows.PasswordFailureInvalidate:
		e.metricInc(MetricPasswordChangeSuccess)
		e.logger.Error("password changed but session not fully revoked", zap.String("subject_id", subjectID), zap.Error(res.Err))
		return errors.Join(ErrSessionInvalidationFailed, res.Err)
	default:
		e.logger.Error("password change failed", zap.String("subject_id", subjectID), zap.Error(res.Err))
		return res.Err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.metricInc(MetricSessionInvalidated)
	if accessToken != "" {
		e.metricInc(MetricTokenBlacklisted)
	}
	e.logger.Info("password changed", zap.String("subject_id", subjectID))
	return nil
}

// Validate verifies an access token. ModeJWTOnly checks signature and expiry
// without touching Redis. ModeStrict also rejects blacklisted tokens and
// fails closed with [ErrStoreUnavailable] when Redis cannot answer.
// ModeInherit uses the configured mode.
func (e *Engine) Validate(ctx context.Context, accessToken string, mode ValidationMode) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if mode == ModeInherit {
		mode = e.config.ValidationMode
	}

	var start time.Time
	if e.metrics.LatencyEnabled() {
		start = time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	res := e.flows.Validate(ctx, accessToken, mode == ModeStrict)

	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureExpired:
		e.metricInc(MetricTokenExpired)
		return nil, ErrTokenExpired
	case flows.ValidateFailureBlacklisted:
		e.metricInc(MetricBlacklistRejected)
		claims := jwt.DecodeUnsafe(accessToken)
		if claims != nil {
			e.logger.Info("blacklisted token presented", zap.String("subject_id", claims.SubjectID()), zap.String("jti", claims.ID))
		}
		return nil, ErrTokenBlacklisted
	case flows.ValidateFailureStore:
		e.metricInc(MetricStoreUnavailable)
		e.logger.Error("blacklist check failed", zap.Error(res.Err))
		return nil, storeUnavailable(res.Err)
	default:
		return nil, ErrUnauthorized
	}

	result := &AuthResult{
		SubjectID: res.Claims.SubjectID(),
		Role:      res.Claims.Role,
		TokenID:   res.Claims.ID,
	}
	if res.Claims.ExpiresAt != nil {
		result.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return result, nil
}

// AllowRequest consumes one unit of the class budget for key. A denied
// request returns the decision together with [ErrRateLimited]. A Redis
// failure returns [ErrStoreUnavailable].
func (e *Engine) AllowRequest(ctx context.Context, class RateClass, key string) (RateDecision, error) {
	if !e.ready() {
		return RateDecision{}, ErrEngineNotReady
	}
	if e.rateLimiter == nil {
		return RateDecision{Allowed: true}, nil
	}

	d, err := e.rateLimiter.TryAcquire(ctx, rate.Class(class), key)
	if err != nil {
		e.metricInc(MetricStoreUnavailable)
		e.logger.Error("rate limiter unavailable", zap.String("class", string(class)), zap.Error(err))
		return RateDecision{}, storeUnavailable(err)
	}

	decision := RateDecision{
		Allowed:    d.Allowed,
		Limit:      d.Limit,
		RetryAfter: d.RetryAfter,
	}
	if d.Limit > 0 && int64(d.Limit) > d.Count {
		decision.Remaining = d.Limit - int(d.Count)
	}
	if !d.Allowed {
		e.metricInc(MetricRateLimitHit)
		e.logger.Info("rate limited",
			zap.String("class", string(class)),
			zap.String("ip", ClientIPFromContext(ctx)),
			zap.Duration("retry_after", d.RetryAfter),
		)
		return decision, ErrRateLimited
	}
	return decision, nil
}

// ResetRateLimit clears the class counter for key.
func (e *Engine) ResetRateLimit(ctx context.Context, class RateClass, key string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if e.rateLimiter == nil {
		return nil
	}
	if err := e.rateLimiter.Reset(ctx, rate.Class(class), key); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

// UnlockAccount clears the failed-password lockout of email.
func (e *Engine) UnlockAccount(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.lockout.Reset(ctx, email); err != nil {
		return storeUnavailable(err)
	}
	return nil
}

// Health pings Redis and estimates the number of open sessions. It never
// returns an error; an unreachable store is reported in the status.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{}
	}

	latency, err := e.sessionStore.Ping(ctx)
	if err != nil {
		e.logger.Warn("health ping failed", zap.Error(err))
		return HealthStatus{}
	}

	status := HealthStatus{RedisAvailable: true, RedisLatency: latency}
	if n, err := e.sessionStore.EstimateActiveSessions(ctx); err == nil {
		status.ActiveSessions = n
	}
	return status
}
