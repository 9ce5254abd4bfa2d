package password

import "errors"

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrUnsupportedHash is returned for stored hashes no configured scheme can read.
	ErrUnsupportedHash = errors.New("unsupported password hash format")
	// ErrMalformedHash is returned for a stored Argon2id hash that cannot be decoded.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrWeakPassword is the root of every policy rejection.
	ErrWeakPassword = errors.New("password does not meet strength policy")
)
