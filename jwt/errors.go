package jwt

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired is returned when the token is past its exp claim (plus leeway).
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned when the token is not a well-formed JWS.
	ErrMalformed = errors.New("token malformed")
	// ErrSignatureInvalid is returned when the signature or key selection fails.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrWrongKind is returned when a refresh token is presented as an access token or the reverse.
	ErrWrongKind = errors.New("token kind mismatch")
	// ErrInvalid covers every other claim validation failure.
	ErrInvalid = errors.New("token invalid")
)

// classify maps golang-jwt errors onto the package's closed error set.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
}
