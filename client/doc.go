// Package client provides the browser-side refresh coordinator as an
// [http.RoundTripper] for Go clients of the blog API.
//
// # Single-flight refresh
//
// When a request is answered 401 with the token_expired challenge, the
// [Coordinator] either starts the one refresh call for the session or parks
// the request in a bounded queue. Every parked request receives the same
// outcome: the new access token, after which it is replayed, or the terminal
// refresh error, after which the session is anonymous.
//
// The mutex guarding the state is never held across the network. The refresh
// runs in its own goroutine; waiters block on buffered channels and honour
// their request context.
//
// # What this package must NOT do
//
//   - Verify tokens (the server decides expiry).
//   - Queue the logout request behind a refresh.
package client
