package password

import "strings"

// Hasher is the password hashing surface used by the engine.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password string, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Multi hashes with Argon2id and verifies both Argon2id and legacy bcrypt
// hashes, so accounts migrate on their next successful login.
type Multi struct {
	primary *Argon2
	legacy  *Bcrypt
}

// NewMulti builds a [Multi] from an Argon2id configuration.
func NewMulti(cfg Config) (*Multi, error) {
	primary, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Multi{primary: primary, legacy: NewBcrypt(0)}, nil
}

// Hash always produces an Argon2id PHC string.
func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

// Verify dispatches on the stored hash prefix.
func (m *Multi) Verify(password string, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, argon2Prefix):
		return m.primary.Verify(password, encodedHash)
	case isBcrypt(encodedHash):
		return m.legacy.Verify(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsUpgrade is true for every bcrypt hash and for Argon2id hashes with
// weaker parameters.
func (m *Multi) NeedsUpgrade(encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return true, nil
	}
	return m.primary.NeedsUpgrade(encodedHash)
}
