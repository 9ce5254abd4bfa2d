// Package limiters provides account-level guards built beside the
// request-rate counters of internal/rate.
//
//   - [LockoutLimiter] counts failed password checks per email and locks the
//     account for a cooling period once the threshold is hit.
//
// All limiters are nil-safe: calling any method on a nil receiver is a no-op.
//
// # What this package must NOT do
//
//   - Import blogAuth or any sibling internal package.
//   - Decide consequences; flow functions map a lock to an error.
package limiters
