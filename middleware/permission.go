package middleware

import (
	"net/http"

	"github.com/MrEthical07/blogAuth/httpapi/respond"
	"github.com/MrEthical07/blogAuth/permission"
)

// RequirePermission admits requests whose role holds perm in roles. It must
// run after a guard.
func RequirePermission(roles *permission.RoleManager, perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := ClaimsFromContext(r.Context())
			if !ok {
				respond.ErrorWithCode(w, http.StatusUnauthorized, respond.CodeUnauthorized, "unauthorized")
				return
			}
			if !roles.Allows(res.Role, perm) {
				respond.ErrorWithCode(w, http.StatusForbidden, respond.CodeForbidden, "missing permission "+perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
