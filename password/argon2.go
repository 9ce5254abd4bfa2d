package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID  = "argon2id"
	argon2Prefix = "$" + algorithmID + "$"
)

// Lowest cost accepted from configuration or from a stored hash.
var floor = Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the production cost parameters.
func DefaultConfig() Config {
	return Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

// Validate checks c against the minimum cost floor.
func (c Config) Validate() error {
	switch {
	case c.Memory < floor.Memory:
		return fmt.Errorf("argon2 memory must be >= %d KiB", floor.Memory)
	case c.Time < floor.Time:
		return fmt.Errorf("argon2 time must be >= %d", floor.Time)
	case c.Parallelism < floor.Parallelism:
		return fmt.Errorf("argon2 parallelism must be >= %d", floor.Parallelism)
	case c.SaltLength < floor.SaltLength:
		return fmt.Errorf("argon2 salt length must be >= %d", floor.SaltLength)
	case c.KeyLength < floor.KeyLength:
		return fmt.Errorf("argon2 key length must be >= %d", floor.KeyLength)
	}
	return nil
}

// Argon2 hashes passwords with Argon2id and encodes them as PHC strings
// ($argon2id$v=19$m=...,t=...,p=...$salt$key).
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg against the minimum cost floor.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash uses the raw password bytes (no Unicode normalization). Strength rules
// live in [Policy]; Hash only rejects the empty string.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	rec := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
	}
	rec.key = rec.derive(password, a.config.KeyLength)
	return rec.String(), nil
}

// Verify reports whether password matches encodedHash. A malformed hash is an
// error, a wrong password is (false, nil).
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	rec, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	computed := rec.derive(password, uint32(len(rec.key)))
	return subtle.ConstantTimeCompare(computed, rec.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current configuration.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	rec, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := rec.memory < a.config.Memory ||
		rec.time < a.config.Time ||
		rec.parallelism < a.config.Parallelism ||
		uint32(len(rec.key)) != a.config.KeyLength
	return weaker, nil
}

// phc is one decoded Argon2id hash record.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, keyLen)
}

func (p phc) String() string {
	b64 := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version, p.memory, p.time, p.parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func decodePHC(encoded string) (phc, error) {
	var rec phc

	rest, ok := strings.CutPrefix(encoded, argon2Prefix)
	if !ok {
		return rec, ErrUnsupportedHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return rec, fmt.Errorf("%w: want 4 fields, got %d", ErrMalformedHash, len(fields))
	}

	if fields[0] != "v="+strconv.Itoa(argon2.Version) {
		return rec, fmt.Errorf("%w: version %q", ErrUnsupportedHash, fields[0])
	}
	if err := rec.parseParams(fields[1]); err != nil {
		return rec, err
	}

	var err error
	if rec.salt, err = decodeSegment(fields[2]); err != nil || uint32(len(rec.salt)) < floor.SaltLength {
		return rec, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if rec.key, err = decodeSegment(fields[3]); err != nil || len(rec.key) == 0 {
		return rec, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return rec, nil
}

// decodeSegment accepts both the unpadded PHC alphabet and padded base64
// written by older releases.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func (p *phc) parseParams(field string) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(field, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return fmt.Errorf("%w: parameter %q", ErrMalformedHash, pair)
		}
		seen[name] = true

		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: parameter %q", ErrMalformedHash, pair)
		}
		switch name {
		case "m":
			p.memory = uint32(v)
		case "t":
			p.time = uint32(v)
		case "p":
			if v > 255 {
				return fmt.Errorf("%w: parallelism %d", ErrMalformedHash, v)
			}
			p.parallelism = uint8(v)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrMalformedHash, name)
		}
	}
	if len(seen) != 3 {
		return fmt.Errorf("%w: missing parameters", ErrMalformedHash)
	}
	if p.memory < floor.Memory || p.time < floor.Time || p.parallelism < floor.Parallelism {
		return fmt.Errorf("%w: cost below floor", ErrMalformedHash)
	}
	return nil
}
