package middleware

import (
	"context"
	"net/http"
	"strings"

	blogAuth "github.com/MrEthical07/blogAuth"
	"github.com/MrEthical07/blogAuth/httpapi/respond"
)

type authResultContextKey struct{}

type accessTokenContextKey struct{}

// ClaimsFromContext returns the identity injected by a guard.
func ClaimsFromContext(ctx context.Context) (*blogAuth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*blogAuth.AuthResult)
	return res, ok
}

// AccessTokenFromContext returns the raw bearer token a guard accepted, for
// handlers such as logout that must revoke it.
func AccessTokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(accessTokenContextKey{}).(string)
	return tok
}

// WithAuthResult attaches res to ctx the way a guard does. Useful in handler tests.
func WithAuthResult(ctx context.Context, res *blogAuth.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

// Guard rejects requests without a valid bearer access token and injects the
// identity into the request context. An expired token is answered with the
// token_expired challenge so the client can refresh and replay.
func Guard(engine *blogAuth.Engine, mode blogAuth.ValidationMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				respond.ErrorWithCode(w, http.StatusUnauthorized, respond.CodeUnauthorized, "unauthorized")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				respond.ErrorWithCode(w, http.StatusUnauthorized, respond.CodeUnauthorized, "unauthorized")
				return
			}

			res, err := engine.Validate(r.Context(), token, mode)
			if err != nil {
				respond.Error(w, nil, err)
				return
			}

			ctx := WithAuthResult(r.Context(), res)
			ctx = context.WithValue(ctx, accessTokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
