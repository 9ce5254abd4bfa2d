// Package internal contains helpers private to blogAuth, currently secure
// random generation.
//
// # Sub-packages
//
//   - flows: pure-function orchestrators for every Engine operation
//   - limiters: the failed-password lockout
//   - rate: Redis-backed fixed-window request limits
//
// # What this package must NOT do
//
//   - Export types that appear in the public blogAuth API.
//   - Be imported by any package outside the blogAuth module.
package internal
