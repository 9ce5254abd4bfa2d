package middleware

import (
	"net/http"

	blogAuth "github.com/MrEthical07/blogAuth"
)

// RequireStrict returns a guard that also rejects blacklisted tokens and
// fails closed with 503 when Redis is unreachable.
func RequireStrict(engine *blogAuth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, blogAuth.ModeStrict)
}
