// Package memory is an in-process UserProvider for development servers and
// tests. Records live in a map guarded by a RWMutex.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	blogAuth "github.com/MrEthical07/blogAuth"
	"github.com/MrEthical07/blogAuth/password"
)

// Store keeps user records keyed by id with a lowercased email index.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]blogAuth.UserRecord
	byEmail map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		byID:    make(map[string]blogAuth.UserRecord),
		byEmail: make(map[string]string),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Put inserts or replaces rec. An empty ID is assigned a random UUID.
func (s *Store) Put(rec blogAuth.UserRecord) (blogAuth.UserRecord, error) {
	email := normalizeEmail(rec.Email)
	if email == "" {
		return blogAuth.UserRecord{}, fmt.Errorf("memory: email is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Email = email

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byEmail[email]; ok && owner != rec.ID {
		return blogAuth.UserRecord{}, fmt.Errorf("memory: email %q already registered", email)
	}
	if prev, ok := s.byID[rec.ID]; ok && prev.Email != email {
		delete(s.byEmail, prev.Email)
	}
	s.byID[rec.ID] = rec
	s.byEmail[email] = rec.ID
	return rec, nil
}

// Seed hashes plain with hasher and stores an active user. It is meant for
// bootstrapping a development admin account.
func (s *Store) Seed(hasher password.Hasher, email, plain, role string) (blogAuth.UserRecord, error) {
	hash, err := hasher.Hash(plain)
	if err != nil {
		return blogAuth.UserRecord{}, fmt.Errorf("memory: hash seed password: %w", err)
	}
	return s.Put(blogAuth.UserRecord{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       blogAuth.AccountActive,
	})
}

// SetStatus changes the account status of userID.
func (s *Store) SetStatus(userID string, status blogAuth.AccountStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return blogAuth.ErrUserNotFound
	}
	rec.Status = status
	s.byID[userID] = rec
	return nil
}

// SetRole changes the role of userID.
func (s *Store) SetRole(userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return blogAuth.ErrUserNotFound
	}
	rec.Role = role
	s.byID[userID] = rec
	return nil
}

// GetUserByEmail implements blogAuth.UserProvider.
func (s *Store) GetUserByEmail(_ context.Context, email string) (blogAuth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return blogAuth.UserRecord{}, blogAuth.ErrUserNotFound
	}
	return s.byID[id], nil
}

// GetUserByID implements blogAuth.UserProvider.
func (s *Store) GetUserByID(_ context.Context, userID string) (blogAuth.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[userID]
	if !ok {
		return blogAuth.UserRecord{}, blogAuth.ErrUserNotFound
	}
	return rec, nil
}

// UpdatePasswordHash implements blogAuth.UserProvider.
func (s *Store) UpdatePasswordHash(_ context.Context, userID, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[userID]
	if !ok {
		return blogAuth.ErrUserNotFound
	}
	rec.PasswordHash = newHash
	s.byID[userID] = rec
	return nil
}

var _ blogAuth.UserProvider = (*Store)(nil)
