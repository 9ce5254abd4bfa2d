package client

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned when a refresh is in flight and MaxQueue
	// requests are already waiting for it.
	ErrQueueFull = errors.New("refresh queue full")
	// ErrSessionCleared is returned to waiters discarded by Clear.
	ErrSessionCleared = errors.New("session cleared")
	// ErrNoSession is returned when a refresh is needed but no refresh token is held.
	ErrNoSession = errors.New("no session")
)

// RefreshError is the terminal outcome shared by every request that waited
// on a failed refresh.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// StatusError is returned by [HTTPRefresher] for a non-2xx answer.
type StatusError struct {
	StatusCode int
	Code       string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("refresh endpoint returned %d", e.StatusCode)
	}
	return fmt.Sprintf("refresh endpoint returned %d (%s)", e.StatusCode, e.Code)
}
