// Package middleware adapts blogAuth.Engine to net/http.
//
// # Guards
//
//   - [Guard]: validates the bearer token in the given mode.
//   - [RequireJWTOnly]: stateless JWT verification, no Redis call.
//   - [RequireStrict]: JWT plus blacklist check, fails closed.
//   - [RequireRole]: admits only listed roles; runs after a guard.
//
// Guards inject the identity into the request context; downstream handlers
// read it with [ClaimsFromContext]. An expired token is answered 401 with
// `WWW-Authenticate: Bearer error="invalid_token", error_description="token_expired"`.
//
// # Rate limiting
//
// [RateLimit] runs before authentication and business logic. [ClientIP]
// records the caller address used by [KeyByIP] and by engine log lines.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
package middleware
