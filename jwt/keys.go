package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errNoSigningKey = errors.New("manager has no signing key")
	errMissingKid   = errors.New("missing kid")
	errUnknownKid   = errors.New("unknown kid")
)

// keyring holds key material decoded once at construction.
type keyring struct {
	method jwt.SigningMethod
	kid    string
	sign   any            // nil for verify-only Ed25519 managers
	verify any            // default verification key
	byKid  map[string]any // when non-empty, every token must name one of these
}

func newKeyring(cfg Config) (*keyring, error) {
	kr := &keyring{kid: strings.TrimSpace(cfg.KeyID)}

	var decode func([]byte) (any, error)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		kr.method = jwt.SigningMethodHS256
		kr.sign, kr.verify = cfg.PrivateKey, cfg.PrivateKey
		decode = func(b []byte) (any, error) { return b, nil }
	case MethodEd25519:
		kr.method = jwt.SigningMethodEdDSA
		decode = func(b []byte) (any, error) { return edPublicKey(b) }
		if len(cfg.PrivateKey) > 0 {
			priv, err := edPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			kr.sign = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := edPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			kr.verify = pub
		} else if len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires a public key or verify key set")
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		kr.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key set contains an empty kid")
			}
			key, err := decode(raw)
			if err != nil {
				return nil, fmt.Errorf("verify key %q: %w", kid, err)
			}
			kr.byKid[kid] = key
		}
		if _, ok := kr.byKid[kr.kid]; kr.kid != "" && !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}
	return kr, nil
}

// lookup is the golang-jwt Keyfunc.
func (kr *keyring) lookup(t *jwt.Token) (any, error) {
	if t.Method.Alg() != kr.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	switch {
	case len(kr.byKid) > 0:
		if kid == "" {
			return nil, errMissingKid
		}
		key, ok := kr.byKid[kid]
		if !ok {
			return nil, errUnknownKid
		}
		return key, nil
	case kr.kid != "" && kid == "":
		return nil, errMissingKid
	case kr.kid != "" && kid != kr.kid:
		return nil, errUnknownKid
	}
	return kr.verify, nil
}

// Raw 32/64-byte keys and PEM are both accepted.
func edPrivateKey(b []byte) (ed25519.PrivateKey, error) {
	if len(b) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(b), nil
	}
	k, err := jwt.ParseEdPrivateKeyFromPEM(b)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	priv, ok := k.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not ed25519")
	}
	return priv, nil
}

func edPublicKey(b []byte) (ed25519.PublicKey, error) {
	if len(b) == ed25519.PublicKeySize {
		return ed25519.PublicKey(b), nil
	}
	k, err := jwt.ParseEdPublicKeyFromPEM(b)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	pub, ok := k.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ed25519")
	}
	return pub, nil
}
