package blogAuth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRefreshConcurrentNonRotatingAllSucceed(t *testing.T) {
	f := newTestEngine(t, nil)
	login := mustLogin(t, f.engine)

	const workers = 16
	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.Refresh(context.Background(), login.RefreshToken); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("expected every refresh to succeed, %d failed", failures.Load())
	}
}

func TestRefreshConcurrencySingleWinnerWithRotation(t *testing.T) {
	f := newTestEngine(t, func(c *Config) { c.Session.RotateRefreshTokens = true })
	login := mustLogin(t, f.engine)

	const workers = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		rejected  atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Refresh(context.Background(), login.RefreshToken)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrInvalidOrExpiredRefreshToken):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", successes.Load())
	}
	if rejected.Load() != workers-1 {
		t.Fatalf("expected %d rejections, got %d", workers-1, rejected.Load())
	}
}
