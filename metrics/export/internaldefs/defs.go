package internaldefs

import (
	"strconv"
	"strings"

	blogAuth "github.com/MrEthical07/blogAuth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   blogAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   blogAuth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: blogAuth.MetricLoginSuccess, Name: "blogauth_login_success_total", Help: "Successful login attempts."},
	{ID: blogAuth.MetricLoginFailure, Name: "blogauth_login_failure_total", Help: "Login attempts rejected as invalid credentials."},
	{ID: blogAuth.MetricLoginLocked, Name: "blogauth_login_locked_total", Help: "Login attempts rejected by the failed-login lockout."},
	{ID: blogAuth.MetricAccountDisabled, Name: "blogauth_account_disabled_total", Help: "Logins and refreshes refused for a disabled account."},
	{ID: blogAuth.MetricRefreshSuccess, Name: "blogauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: blogAuth.MetricRefreshFailure, Name: "blogauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: blogAuth.MetricRefreshSuperseded, Name: "blogauth_refresh_superseded_total", Help: "Refresh attempts with a token replaced by a newer login."},
	{ID: blogAuth.MetricRateLimitHit, Name: "blogauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
	{ID: blogAuth.MetricSessionCreated, Name: "blogauth_session_created_total", Help: "Created sessions."},
	{ID: blogAuth.MetricSessionInvalidated, Name: "blogauth_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: blogAuth.MetricLogout, Name: "blogauth_logout_total", Help: "Logout operations."},
	{ID: blogAuth.MetricTokenBlacklisted, Name: "blogauth_token_blacklisted_total", Help: "Access tokens added to the blacklist."},
	{ID: blogAuth.MetricBlacklistRejected, Name: "blogauth_blacklist_rejected_total", Help: "Requests rejected because the access token was blacklisted."},
	{ID: blogAuth.MetricTokenExpired, Name: "blogauth_token_expired_total", Help: "Requests rejected with an expired access token."},
	{ID: blogAuth.MetricPasswordChangeSuccess, Name: "blogauth_password_change_success_total", Help: "Successful password changes."},
	{ID: blogAuth.MetricPasswordChangeInvalidOld, Name: "blogauth_password_change_invalid_old_total", Help: "Password change attempts with an invalid old password."},
	{ID: blogAuth.MetricPasswordChangeRejected, Name: "blogauth_password_change_rejected_total", Help: "Password change attempts rejected by the strength policy."},
	{ID: blogAuth.MetricPasswordHashUpgraded, Name: "blogauth_password_hash_upgraded_total", Help: "Stored password hashes upgraded at login."},
	{ID: blogAuth.MetricStoreUnavailable, Name: "blogauth_store_unavailable_total", Help: "Operations failed closed because Redis was unavailable."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: blogAuth.MetricValidateLatency, Name: "blogauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// Bucket describes one histogram bucket boundary. The last bucket is the
// +Inf overflow.
type Bucket struct {
	Le     string // Prometheus le label
	Suffix string // instrument-name friendly form
}

// Buckets is derived from blogAuth.LatencyBuckets.
var Buckets = buildBuckets()

func buildBuckets() []Bucket {
	out := make([]Bucket, 0, len(blogAuth.LatencyBuckets)+1)
	for _, d := range blogAuth.LatencyBuckets {
		le := strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
		out = append(out, Bucket{Le: le, Suffix: strings.ReplaceAll(le, ".", "_")})
	}
	return append(out, Bucket{Le: "+Inf", Suffix: "inf"})
}

// Cumulative turns per-bucket counts into running totals of len(Buckets).
// Missing trailing buckets count as zero; extra ones are folded into +Inf.
func Cumulative(raw []uint64) []uint64 {
	out := make([]uint64, len(Buckets))
	var running uint64
	for i, v := range raw {
		running += v
		if i < len(out) {
			out[i] = running
		}
	}
	for i := len(raw); i < len(out); i++ {
		out[i] = running
	}
	out[len(out)-1] = running
	return out
}
