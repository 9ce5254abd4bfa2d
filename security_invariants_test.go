package blogAuth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSecurityInvariantRedisNeverHoldsRawAccessToken(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	login := mustLogin(t, f.engine)

	if err := f.engine.Logout(ctx, "42", login.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	for _, key := range f.mr.Keys() {
		if strings.Contains(key, login.AccessToken) {
			t.Fatalf("raw access token appears in key %q", key)
		}
		if v, err := f.mr.Get(key); err == nil && v == login.AccessToken {
			t.Fatalf("raw access token stored under %q", key)
		}
	}
}

func TestSecurityInvariantOneRefreshSlotPerSubject(t *testing.T) {
	f := newTestEngine(t, nil)
	for i := 0; i < 5; i++ {
		mustLogin(t, f.engine)
	}

	var slots int
	for _, key := range f.mr.Keys() {
		if strings.HasPrefix(key, "bs:rt:") {
			slots++
		}
	}
	if slots != 1 {
		t.Fatalf("expected one refresh slot, got %d", slots)
	}
}

func TestSecurityInvariantLoggedOutRefreshNeverRevives(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	login := mustLogin(t, f.engine)

	if err := f.engine.Logout(ctx, "42", login.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.engine.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidOrExpiredRefreshToken) {
			t.Fatalf("attempt %d: expected rejection, got %v", i, err)
		}
	}
	if f.mr.Exists("bs:rt:42") {
		t.Fatal("rejected refresh must not recreate the slot")
	}
}

func TestSecurityInvariantForeignAccessTokenNotBlacklistedOnLogout(t *testing.T) {
	f := newTestEngine(t, nil)
	ctx := context.Background()
	login := mustLogin(t, f.engine)

	if err := f.engine.Logout(ctx, "99", login.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.engine.Validate(ctx, login.AccessToken, ModeStrict); err != nil {
		t.Fatalf("another subject's logout must not revoke this token, got %v", err)
	}
	if !f.mr.Exists("bs:rt:42") {
		t.Fatal("another subject's logout must not touch this slot")
	}
}
