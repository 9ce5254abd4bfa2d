// Package jwt issues and verifies the access and refresh tokens used by the
// session lifecycle. Both kinds are signed JWTs distinguished by a "typ" claim;
// verification failures are reported as Expired, Malformed, SignatureInvalid,
// WrongKind or Invalid so callers can tell an expired token from a forged one.
package jwt
