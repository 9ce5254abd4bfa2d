// Package postgres is a UserProvider backed by a PostgreSQL users table.
//
// The store only reads credentials and writes password hashes; the schema is
// owned by the user-management service:
//
//	CREATE TABLE users (
//	    id            TEXT PRIMARY KEY,
//	    email         TEXT NOT NULL UNIQUE,
//	    password_hash TEXT NOT NULL,
//	    role          TEXT NOT NULL,
//	    status        TEXT NOT NULL DEFAULT 'active'
//	);
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	blogAuth "github.com/MrEthical07/blogAuth"
)

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store reads users through db.
type Store struct {
	db DBTX
}

// New returns a Store using db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects to dsn with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

func parseStatus(s string) blogAuth.AccountStatus {
	switch strings.ToLower(s) {
	case "active":
		return blogAuth.AccountActive
	case "locked":
		return blogAuth.AccountLocked
	default:
		return blogAuth.AccountDisabled
	}
}

func (s *Store) scanOne(ctx context.Context, query string, arg string) (blogAuth.UserRecord, error) {
	var (
		rec    blogAuth.UserRecord
		status string
	)
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &rec.Role, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return blogAuth.UserRecord{}, blogAuth.ErrUserNotFound
		}
		return blogAuth.UserRecord{}, fmt.Errorf("db error: %w", err)
	}
	rec.Status = parseStatus(status)
	return rec, nil
}

// GetUserByEmail implements blogAuth.UserProvider. Emails compare
// case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (blogAuth.UserRecord, error) {
	query :=
		`SELECT id, email, password_hash, role, status FROM users
		 WHERE lower(email) = lower($1)
		 `
	return s.scanOne(ctx, query, strings.TrimSpace(email))
}

// GetUserByID implements blogAuth.UserProvider.
func (s *Store) GetUserByID(ctx context.Context, userID string) (blogAuth.UserRecord, error) {
	query :=
		`SELECT id, email, password_hash, role, status FROM users
		 WHERE id = $1
		 `
	return s.scanOne(ctx, query, userID)
}

// UpdatePasswordHash implements blogAuth.UserProvider.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	query :=
		`UPDATE users SET password_hash = $2
		 WHERE id = $1
		 `
	res, err := s.db.ExecContext(ctx, query, userID, newHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return blogAuth.ErrUserNotFound
	}
	return nil
}

var _ blogAuth.UserProvider = (*Store)(nil)
