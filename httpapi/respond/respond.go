// Package respond writes the JSON bodies shared by the HTTP handlers and the
// auth middleware.
package respond

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	blogAuth "github.com/MrEthical07/blogAuth"
	"go.uber.org/zap"
)

const (
	CodeInvalidPayload        = "invalid_payload"
	CodeValidation            = "validation_error"
	CodeUnauthorized          = "unauthorized"
	CodeTokenExpired          = "token_expired"
	CodeTokenRevoked          = "token_revoked"
	CodeForbidden             = "forbidden"
	CodeInvalidCredentials    = "invalid_credentials"
	CodeAccountDisabled       = "account_disabled"
	CodeRateLimited           = "rate_limited"
	CodeInvalidRefreshToken   = "invalid_or_expired_refresh_token"
	CodeInvalidPassword       = "invalid_password"
	CodeWeakPassword          = "weak_password"
	CodeStoreUnavailable      = "store_unavailable"
	CodeSessionNotInvalidated = "session_invalidation_failed"
	CodeInternal              = "internal_server_error"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// JSON writes payload with status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ErrorWithCode writes an [ErrorResponse].
func ErrorWithCode(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Code: code, Message: message})
}

// TokenExpired answers 401 with the challenge clients use to tell an expired
// access token from any other rejection.
func TokenExpired(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="token_expired"`)
	ErrorWithCode(w, http.StatusUnauthorized, CodeTokenExpired, "access token expired")
}

// RateLimited answers 429 with Retry-After in whole seconds, rounded up.
func RateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	JSON(w, http.StatusTooManyRequests, ErrorResponse{
		Code:              CodeRateLimited,
		Message:           "too many requests",
		RetryAfterSeconds: secs,
	})
}

// Status maps an engine error to an HTTP status, code and public message.
func Status(err error) (int, string, string) {
	switch {
	case errors.Is(err, blogAuth.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password"
	case errors.Is(err, blogAuth.ErrAccountDisabled):
		return http.StatusForbidden, CodeAccountDisabled, "account disabled"
	case errors.Is(err, blogAuth.ErrInvalidOrExpiredRefreshToken):
		return http.StatusUnauthorized, CodeInvalidRefreshToken, "invalid or expired refresh token"
	case errors.Is(err, blogAuth.ErrTokenExpired):
		return http.StatusUnauthorized, CodeTokenExpired, "access token expired"
	case errors.Is(err, blogAuth.ErrTokenBlacklisted):
		return http.StatusUnauthorized, CodeTokenRevoked, "access token revoked"
	case errors.Is(err, blogAuth.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized, "unauthorized"
	case errors.Is(err, blogAuth.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited, "too many requests"
	case errors.Is(err, blogAuth.ErrInvalidPassword):
		return http.StatusBadRequest, CodeInvalidPassword, "current password is incorrect"
	case errors.Is(err, blogAuth.ErrPasswordReuse):
		return http.StatusBadRequest, CodeWeakPassword, "new password must differ from the current one"
	case errors.Is(err, blogAuth.ErrWeakPassword):
		return http.StatusBadRequest, CodeWeakPassword, err.Error()
	case errors.Is(err, blogAuth.ErrSessionInvalidationFailed):
		return http.StatusServiceUnavailable, CodeSessionNotInvalidated, "password changed but the session could not be ended"
	case errors.Is(err, blogAuth.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, CodeStoreUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal server error"
	}
}

// Error maps err with [Status] and writes it. Server-side failures are logged.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code, msg := Status(err)
	if code == CodeTokenExpired {
		TokenExpired(w)
		return
	}
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error(msg, zap.Int("status", status), zap.Error(err))
	}
	ErrorWithCode(w, status, code, msg)
}
