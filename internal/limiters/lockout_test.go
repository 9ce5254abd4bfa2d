package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLockoutThresholdAndReset(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := NewLockoutLimiter(rdb, LockoutConfig{Enabled: true, Threshold: 3, Duration: time.Minute})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		reached, err := l.RecordFailure(ctx, "Alice@Example.com")
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if reached != (i == 3) {
			t.Fatalf("attempt %d: unexpected reached=%v", i, reached)
		}
	}

	remaining, err := l.Locked(ctx, "alice@example.com")
	if err != nil || remaining <= 0 || remaining > time.Minute {
		t.Fatalf("expected locked (case-insensitive) for up to a minute, remaining=%v err=%v", remaining, err)
	}
	mr.FastForward(20 * time.Second)
	if remaining, _ := l.Locked(ctx, "alice@example.com"); remaining > 40*time.Second {
		t.Fatalf("remaining lock should shrink, got %v", remaining)
	}

	if err := l.Reset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if remaining, _ := l.Locked(ctx, "alice@example.com"); remaining != 0 {
		t.Fatal("expected unlocked after reset")
	}

	_, _ = l.RecordFailure(ctx, "bob@example.com")
	_, _ = l.RecordFailure(ctx, "bob@example.com")
	_, _ = l.RecordFailure(ctx, "bob@example.com")
	mr.FastForward(2 * time.Minute)
	if remaining, _ := l.Locked(ctx, "bob@example.com"); remaining != 0 {
		t.Fatal("expected lock to expire with the window")
	}

	mr.Close()
	if _, err := l.Locked(ctx, "bob@example.com"); !errors.Is(err, ErrLockoutUnavailable) {
		t.Fatalf("expected ErrLockoutUnavailable, got %v", err)
	}
}

func TestLockoutNilAndDisabled(t *testing.T) {
	var l *LockoutLimiter
	if remaining, err := l.Locked(context.Background(), "x"); remaining != 0 || err != nil {
		t.Fatalf("nil limiter should be a no-op, remaining=%v err=%v", remaining, err)
	}
	d := NewLockoutLimiter(nil, LockoutConfig{Enabled: false})
	if reached, err := d.RecordFailure(context.Background(), "x"); reached || err != nil {
		t.Fatalf("disabled limiter should be a no-op, reached=%v err=%v", reached, err)
	}
}

func TestLockoutCounterAlwaysExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewLockoutLimiter(rdb, LockoutConfig{Enabled: true, Threshold: 5, Duration: time.Minute})
	ctx := context.Background()

	// A counter left without a TTL gets one on the next failure.
	mr.Set("alo:carol@example.com", "2")
	if _, err := l.RecordFailure(ctx, " Carol@Example.com "); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if ttl := mr.TTL("alo:carol@example.com"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected TTL within a minute, got %v", ttl)
	}
	if got, _ := mr.Get("alo:carol@example.com"); got != "3" {
		t.Fatalf("expected counter 3, got %q", got)
	}
}

func TestLockoutInertWhenDisabled(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	for name, l := range map[string]*LockoutLimiter{
		"disabled":       NewLockoutLimiter(rdb, LockoutConfig{Enabled: false, Threshold: 1}),
		"zero threshold": NewLockoutLimiter(rdb, LockoutConfig{Enabled: true}),
		"nil":            nil,
	} {
		if reached, err := l.RecordFailure(ctx, "dave@example.com"); reached || err != nil {
			t.Fatalf("%s: reached=%v err=%v", name, reached, err)
		}
		if remaining, err := l.Locked(ctx, "dave@example.com"); remaining != 0 || err != nil {
			t.Fatalf("%s: remaining=%v err=%v", name, remaining, err)
		}
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("inert limiter wrote keys: %v", mr.Keys())
	}
}

func TestLockoutWithoutTTLReportsFullPeriod(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := NewLockoutLimiter(rdb, LockoutConfig{Enabled: true, Threshold: 2, Duration: 15 * time.Minute})
	mr.Set("alo:erin@example.com", "2")

	remaining, err := l.Locked(context.Background(), "erin@example.com")
	if err != nil {
		t.Fatalf("locked: %v", err)
	}
	if remaining != 15*time.Minute {
		t.Fatalf("expected full lock period, got %v", remaining)
	}
}
