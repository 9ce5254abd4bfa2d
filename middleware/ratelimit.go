package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	blogAuth "github.com/MrEthical07/blogAuth"
	"github.com/MrEthical07/blogAuth/httpapi/respond"
)

// KeyFunc extracts the rate-limit key from a request. An empty key skips
// limiting for that request.
type KeyFunc func(r *http.Request) string

// KeyByIP keys on the client IP recorded by [ClientIP], falling back to RemoteAddr.
func KeyByIP(r *http.Request) string {
	if ip := blogAuth.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	return remoteIP(r.RemoteAddr)
}

// KeyBySubject keys on the guarded subject. It must run after a guard.
func KeyBySubject(r *http.Request) string {
	if res, ok := ClaimsFromContext(r.Context()); ok {
		return res.SubjectID
	}
	return ""
}

// RateLimit consumes one unit of class for the request key before the
// wrapped handler runs. Denied requests get 429 with Retry-After; a store
// failure answers 503.
func RateLimit(engine *blogAuth.Engine, class blogAuth.RateClass, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := engine.AllowRequest(r.Context(), class, k)
			if err != nil {
				if errors.Is(err, blogAuth.ErrRateLimited) {
					respond.RateLimited(w, d.RetryAfter)
					return
				}
				respond.Error(w, nil, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP records the caller's IP in the request context. With trustProxy
// the first X-Forwarded-For entry wins.
func ClientIP(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteIP(r.RemoteAddr)
			if trustProxy {
				if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
					first, _, _ := strings.Cut(fwd, ",")
					if first = strings.TrimSpace(first); first != "" {
						ip = first
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(blogAuth.WithClientIP(r.Context(), ip)))
		})
	}
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
