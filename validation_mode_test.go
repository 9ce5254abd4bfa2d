package blogAuth

import (
	"context"
	"errors"
	"testing"
)

func TestValidationModeStrictFailsClosedWhenRedisDown(t *testing.T) {
	f := newTestEngine(t, nil)
	login := mustLogin(t, f.engine)
	f.mr.Close()

	if _, err := f.engine.Validate(context.Background(), login.AccessToken, ModeStrict); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestValidationModeJWTOnlyDoesNotRequireRedis(t *testing.T) {
	f := newTestEngine(t, nil)
	login := mustLogin(t, f.engine)
	f.mr.Close()

	auth, err := f.engine.Validate(context.Background(), login.AccessToken, ModeJWTOnly)
	if err != nil {
		t.Fatalf("jwt-only validation: %v", err)
	}
	if auth.SubjectID != "42" || auth.TokenID == "" || auth.ExpiresAt.IsZero() {
		t.Fatalf("unexpected identity %+v", auth)
	}
}

func TestValidationModeInheritUsesConfig(t *testing.T) {
	f := newTestEngine(t, func(c *Config) { c.ValidationMode = ModeJWTOnly })
	ctx := context.Background()
	login := mustLogin(t, f.engine)

	if err := f.engine.Logout(ctx, "42", login.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.engine.Validate(ctx, login.AccessToken, ModeInherit); err != nil {
		t.Fatalf("inherited jwt-only mode must skip the blacklist, got %v", err)
	}
	if _, err := f.engine.Validate(ctx, login.AccessToken, ModeStrict); !errors.Is(err, ErrTokenBlacklisted) {
		t.Fatalf("explicit strict mode must see the blacklist, got %v", err)
	}
}

func TestValidationRejectsRefreshTokenAsAccess(t *testing.T) {
	f := newTestEngine(t, nil)
	login := mustLogin(t, f.engine)

	if _, err := f.engine.Validate(context.Background(), login.RefreshToken, ModeJWTOnly); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
