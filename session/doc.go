// Package session provides the Redis-backed refresh-token slot and token
// blacklist used by the authentication engine.
//
// # Layout
//
// Each subject owns a single key holding its current refresh token, so storing
// a new token supersedes the previous one. Revoked tokens are recorded under
// their SHA-256 hash with a TTL equal to the token's remaining lifetime.
//
// # Failure semantics
//
// Every Redis failure is wrapped with [ErrStoreUnavailable]. The package never
// converts a transport error into "valid" or "not revoked"; callers fail
// closed.
//
// # Architecture boundaries
//
// This package does NOT interpret JWTs or enforce authentication policy.
// Those responsibilities belong to the Engine.
package session
