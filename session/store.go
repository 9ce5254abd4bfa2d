package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable wraps every transport failure. Callers must fail closed.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrNotFound is returned when a subject has no stored refresh token.
var ErrNotFound = errors.New("refresh token not found")

// ErrRefreshMismatch is returned by RotateRefreshToken when the presented token
// is not the one currently stored for the subject.
var ErrRefreshMismatch = errors.New("refresh token mismatch")

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 1
	rotateStatusRotated  int64 = 2
)

// The stored token is replaced only when it equals the presented one and the
// slot keeps its remaining lifetime when ARGV[3] is zero.
const rotateRefreshScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 1
end
local ttl = tonumber(ARGV[3])
if ttl <= 0 then
  ttl = redis.call("PTTL", KEYS[1])
  if ttl <= 0 then
    redis.call("DEL", KEYS[1])
    return 0
  end
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ttl)
return 2
`

var rotateRefreshLua = redis.NewScript(rotateRefreshScript)

// Counts within a window; the expiry is set on the first hit and restored
// if the key ever lost it.
var countInWindowLua = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Store is a Redis-backed store holding one refresh token per subject and a
// blacklist of revoked tokens keyed by their SHA-256 hash.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store] backed by the given Redis client. prefix sets the
// key namespace and defaults to "bs".
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "bs"
	}
	return &Store{
		redis:  redis,
		prefix: prefix,
	}
}

func (s *Store) refreshKey(subjectID string) string {
	return s.prefix + ":rt:" + subjectID
}

func (s *Store) blacklistKey(tokenHash string) string {
	return s.prefix + ":bl:" + tokenHash
}

func (s *Store) mismatchKey(subjectID string) string {
	return s.prefix + ":rtm:" + subjectID
}

// HashToken returns the hex SHA-256 of a signed token. Blacklist keys and log
// lines use the hash, never the raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// PutRefreshToken stores token as the only refresh token of subjectID,
// replacing any previous one.
//
//	Performance: 1 Redis SET.
func (s *Store) PutRefreshToken(ctx context.Context, subjectID, token string, ttl time.Duration) error {
	if subjectID == "" || token == "" {
		return errors.New("subject and token are required")
	}
	if ttl <= 0 {
		return errors.New("refresh ttl must be positive")
	}
	if err := s.redis.Set(ctx, s.refreshKey(subjectID), token, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// GetRefreshToken returns the stored refresh token of subjectID or
// [ErrNotFound].
//
//	Performance: 1 Redis GET.
func (s *Store) GetRefreshToken(ctx context.Context, subjectID string) (string, error) {
	token, err := s.redis.Get(ctx, s.refreshKey(subjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return token, nil
}

// MatchRefreshToken reports whether presented equals the stored refresh token
// of subjectID, comparing in constant time.
func (s *Store) MatchRefreshToken(ctx context.Context, subjectID, presented string) (bool, error) {
	stored, err := s.GetRefreshToken(ctx, subjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1, nil
}

// DeleteRefreshToken removes the refresh token of subjectID. Deleting an
// absent slot is not an error.
func (s *Store) DeleteRefreshToken(ctx context.Context, subjectID string) error {
	if err := s.redis.Del(ctx, s.refreshKey(subjectID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RotateRefreshToken atomically replaces presented with next for subjectID.
// A zero ttl keeps the remaining lifetime of the slot.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
func (s *Store) RotateRefreshToken(ctx context.Context, subjectID, presented, next string, ttl time.Duration) error {
	code, err := rotateRefreshLua.Run(
		ctx,
		s.redis,
		[]string{s.refreshKey(subjectID)},
		presented,
		next,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch code {
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrRefreshMismatch
	case rotateStatusRotated:
		return nil
	default:
		return fmt.Errorf("%w: unknown rotate script status %d", ErrStoreUnavailable, code)
	}
}

// Blacklist marks tokenHash as revoked for ttl. A non-positive ttl means the
// token has already expired and nothing is written.
func (s *Store) Blacklist(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.blacklistKey(tokenHash), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether tokenHash has been revoked. Errors never
// report false as a valid answer; callers deny on error.
func (s *Store) IsBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.blacklistKey(tokenHash)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

// TrackRefreshMismatch counts presentations of superseded refresh tokens for
// subjectID within window and returns the running count.
func (s *Store) TrackRefreshMismatch(ctx context.Context, subjectID string, window time.Duration) (int64, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}

	keys := []string{s.mismatchKey(subjectID)}
	count, err := countInWindowLua.Run(ctx, s.redis, keys, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

// EstimateActiveSessions counts stored refresh slots with SCAN. The count is
// approximate under concurrent writes.
func (s *Store) EstimateActiveSessions(ctx context.Context) (int, error) {
	pattern := s.prefix + ":rt:*"
	var (
		cursor uint64
		total  int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
