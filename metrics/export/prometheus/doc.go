// Package prometheus renders engine counters in the Prometheus text
// exposition format.
//
// Counter names are prefixed blogauth_ and end in _total; the one histogram
// is blogauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
