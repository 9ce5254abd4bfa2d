package middleware

import (
	"net/http"

	"github.com/MrEthical07/blogAuth/httpapi/respond"
)

// RequireRole admits requests whose guarded identity has one of roles. It
// must run after a guard.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := ClaimsFromContext(r.Context())
			if !ok {
				respond.ErrorWithCode(w, http.StatusUnauthorized, respond.CodeUnauthorized, "unauthorized")
				return
			}
			if _, ok := allowed[res.Role]; !ok {
				respond.ErrorWithCode(w, http.StatusForbidden, respond.CodeForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
