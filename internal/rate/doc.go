// Package rate provides Redis-backed fixed-window request counters that gate
// authentication endpoints.
//
// # Window semantics
//
// One Lua script runs INCR, sets PEXPIRE on the first hit and reads PTTL, so
// the increment-and-compare is atomic across processes. Keys are
// "<prefix>:<class>:<key>"; the counter resets when the key expires.
//
// # What this package must NOT do
//
//   - Decide which request attribute is the key (the caller picks IP, email or subject).
//   - Fail open: a Redis error denies the request.
package rate
