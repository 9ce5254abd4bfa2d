package middleware

import (
	"net/http"

	blogAuth "github.com/MrEthical07/blogAuth"
)

// RequireJWTOnly returns a guard that checks signature and expiry only,
// skipping Redis. Use it for read-heavy routes where a revoked token living
// out its access TTL is acceptable.
func RequireJWTOnly(engine *blogAuth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, blogAuth.ModeJWTOnly)
}
