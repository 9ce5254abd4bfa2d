// Package httpapi exposes the authentication engine over HTTP.
//
// Routes:
//
//	POST /auth/login     {email, password}            -> {accessToken, refreshToken, user}
//	POST /auth/refresh   {refreshToken}               -> {accessToken[, refreshToken]}
//	POST /auth/logout    bearer                       -> {message}
//	PUT  /auth/password  bearer {oldPassword, newPassword} -> {message}
//	GET  /auth/me        bearer                       -> {subjectId, role, permissions}
//	GET  /healthz                                     -> engine health
//
// Error bodies use [respond.ErrorResponse].
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	blogAuth "github.com/MrEthical07/blogAuth"
	"github.com/MrEthical07/blogAuth/cache"
	"github.com/MrEthical07/blogAuth/httpapi/respond"
	"github.com/MrEthical07/blogAuth/middleware"
	"github.com/MrEthical07/blogAuth/permission"
)

const maxBodyBytes = 1 << 16

var validate = validator.New()

// Options configures [New].
type Options struct {
	Engine *blogAuth.Engine
	// Cache receives "user:<id>*" after a password change. Nil means [cache.Nop].
	Cache cache.Invalidator
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool
	// Roles resolves the capabilities listed by GET /auth/me. Defaults to
	// permission.DefaultBlogRoles().
	Roles *permission.RoleManager
}

// Handler serves the auth routes.
type Handler struct {
	engine *blogAuth.Engine
	cache  cache.Invalidator
	logger *zap.Logger
	roles  *permission.RoleManager
	trust  bool
}

// New returns a Handler. Engine is required.
func New(opts Options) *Handler {
	h := &Handler{
		engine: opts.Engine,
		cache:  opts.Cache,
		logger: opts.Logger,
		roles:  opts.Roles,
		trust:  opts.TrustProxy,
	}
	if h.roles == nil {
		h.roles = permission.DefaultBlogRoles()
	}
	if h.cache == nil {
		h.cache = cache.Nop{}
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// Routes returns the mux with rate limiting applied before authentication.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	byIP := func(class blogAuth.RateClass) func(http.Handler) http.Handler {
		return middleware.RateLimit(h.engine, class, middleware.KeyByIP)
	}
	bySubject := func(class blogAuth.RateClass) func(http.Handler) http.Handler {
		return middleware.RateLimit(h.engine, class, middleware.KeyBySubject)
	}

	mux.Handle("POST /auth/login", byIP(blogAuth.RateClassLogin)(http.HandlerFunc(h.Login)))
	mux.Handle("POST /auth/refresh", byIP(blogAuth.RateClassRefresh)(http.HandlerFunc(h.Refresh)))
	// JWT-only so that a second logout with an already revoked token still succeeds.
	mux.Handle("POST /auth/logout", middleware.RequireJWTOnly(h.engine)(http.HandlerFunc(h.Logout)))
	mux.Handle("PUT /auth/password", middleware.RequireStrict(h.engine)(
		bySubject(blogAuth.RateClassPasswordChange)(http.HandlerFunc(h.ChangePassword)),
	))
	mux.Handle("GET /auth/me", middleware.RequireStrict(h.engine)(http.HandlerFunc(h.Me)))
	mux.HandleFunc("GET /healthz", h.Health)

	return middleware.ClientIP(h.trust)(mux)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respond.ErrorWithCode(w, http.StatusBadRequest, respond.CodeInvalidPayload, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respond.ErrorWithCode(w, http.StatusBadRequest, respond.CodeValidation, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "validation error"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()[:1])+fe.Field()[1:]+" "+fe.Tag())
	}
	return "validation error: " + strings.Join(fields, ", ")
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, blogAuth.ErrRateLimited) {
		respond.RateLimited(w, blogAuth.RetryAfter(err))
		return
	}
	respond.Error(w, h.logger, err)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, res)
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respond.ErrorWithCode(w, http.StatusUnauthorized, respond.CodeUnauthorized, "unauthorized")
		return
	}

	if err := h.engine.Logout(r.Context(), claims.SubjectID, middleware.AccessTokenFromContext(r.Context())); err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// ChangePassword handles PUT /auth/password. On success the session is over
// and cached content for the user is invalidated.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respond.ErrorWithCode(w, http.StatusUnauthorized, respond.CodeUnauthorized, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.engine.ChangePassword(
		r.Context(),
		claims.SubjectID,
		req.OldPassword,
		req.NewPassword,
		middleware.AccessTokenFromContext(r.Context()),
	)
	if err != nil {
		h.fail(w, err)
		return
	}

	// The cache fails open; an error here never fails the request.
	if err := h.cache.Invalidate(r.Context(), "user:"+claims.SubjectID+"*"); err != nil {
		h.logger.Warn("cache invalidation failed", zap.String("subject_id", claims.SubjectID), zap.Error(err))
	}
	respond.JSON(w, http.StatusOK, MessageResponse{Message: "password changed"})
}

// Me handles GET /auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respond.ErrorWithCode(w, http.StatusUnauthorized, respond.CodeUnauthorized, "unauthorized")
		return
	}
	respond.JSON(w, http.StatusOK, MeResponse{
		SubjectID:   claims.SubjectID,
		Role:        claims.Role,
		Permissions: h.roles.Permissions(claims.Role),
	})
}

type healthResponse struct {
	Redis          bool   `json:"redis"`
	RedisLatency   string `json:"redisLatency"`
	ActiveSessions int    `json:"activeSessions"`
}

// Health handles GET /healthz. It answers 503 while Redis is unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Health(r.Context())
	status := http.StatusOK
	if !st.RedisAvailable {
		status = http.StatusServiceUnavailable
	}
	respond.JSON(w, status, healthResponse{
		Redis:          st.RedisAvailable,
		RedisLatency:   st.RedisLatency.String(),
		ActiveSessions: st.ActiveSessions,
	})
}
