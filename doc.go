// Package blogAuth provides the session and token lifecycle of the blog CMS:
// short-lived JWT access tokens, one server-tracked refresh token per user,
// a revocation blacklist and rate limits for the authentication endpoints.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. All shared state lives in Redis.
//
// # Architecture boundaries
//
// blogAuth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types. Flow orchestration and rate counters live under internal/;
// token codec, session store and password hashing live in jwt, session and
// password. HTTP wiring lives in middleware and httpapi, the client-side
// refresh coordinator in client.
//
// # Failure semantics
//
// Refresh-token validity and blacklist membership fail closed: when Redis
// cannot answer, the engine returns [ErrStoreUnavailable] and never treats the
// token as valid. Content caching (package cache) fails open and shares no code
// with this path.
//
// # Performance contract
//
// Validate in ModeJWTOnly performs no Redis round-trip. ModeStrict adds one
// EXISTS. Login, Refresh and Logout use one or two round-trips.
package blogAuth
