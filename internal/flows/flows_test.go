package flows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/blogAuth/jwt"
	"github.com/MrEthical07/blogAuth/password"
)

var errNoUser = errors.New("no user")
var errDown = errors.New("store down")
var errMismatch = errors.New("mismatch")

type fakeStore struct {
	mu         sync.Mutex
	slots      map[string]string
	revoked    map[string]time.Duration
	mismatches int
	fail       bool
	failDelete bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{slots: map[string]string{}, revoked: map[string]time.Duration{}}
}

func (s *fakeStore) PutRefreshToken(_ context.Context, subjectID, token string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errDown
	}
	s.slots[subjectID] = token
	return nil
}

func (s *fakeStore) MatchRefreshToken(_ context.Context, subjectID, presented string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false, errDown
	}
	return s.slots[subjectID] == presented, nil
}

func (s *fakeStore) DeleteRefreshToken(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail || s.failDelete {
		return errDown
	}
	delete(s.slots, subjectID)
	return nil
}

func (s *fakeStore) RotateRefreshToken(_ context.Context, subjectID, presented, next string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errDown
	}
	if s.slots[subjectID] != presented {
		return errMismatch
	}
	s.slots[subjectID] = next
	return nil
}

func (s *fakeStore) TrackRefreshMismatch(context.Context, string, time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mismatches++
	return int64(s.mismatches), nil
}

func (s *fakeStore) Blacklist(_ context.Context, hash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errDown
	}
	if ttl > 0 {
		s.revoked[hash] = ttl
	}
	return nil
}

func (s *fakeStore) IsBlacklisted(_ context.Context, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false, errDown
	}
	_, ok := s.revoked[hash]
	return ok, nil
}

type fixture struct {
	tokens *jwt.Manager
	hasher *password.Multi
	store  *fakeStore
	users  map[string]User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	hasher, err := password.NewMulti(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	hash, err := hasher.Hash("Secret123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &fixture{
		tokens: tokens,
		hasher: hasher,
		store:  newFakeStore(),
		users: map[string]User{
			"42": {ID: "42", Email: "admin@blog.test", PasswordHash: hash, Role: "admin", Active: true},
		},
	}
}

func (f *fixture) byEmail(_ context.Context, email string) (User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, errNoUser
}

func (f *fixture) byID(_ context.Context, id string) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, errNoUser
	}
	return u, nil
}

func (f *fixture) updateHash(_ context.Context, id, hash string) error {
	u := f.users[id]
	u.PasswordHash = hash
	f.users[id] = u
	return nil
}

func (f *fixture) loginDeps() LoginDeps {
	return LoginDeps{
		GetUserByEmail:     f.byEmail,
		UpdatePasswordHash: f.updateHash,
		UserNotFound:       errNoUser,
		Hasher:             f.hasher,
		Tokens:             f.tokens,
		Store:              f.store,
	}
}

func (f *fixture) refreshDeps(rotate bool) RefreshDeps {
	return RefreshDeps{
		GetUserByID:  f.byID,
		UserNotFound: errNoUser,
		Tokens:       f.tokens,
		Store:        f.store,
		Rotate:       rotate,
		Mismatch:     errMismatch,
	}
}

func (f *fixture) logoutDeps() LogoutDeps {
	return LogoutDeps{
		Tokens:            f.tokens,
		Store:             f.store,
		Blacklist:         f.store,
		HashToken:         func(s string) string { return "h:" + s },
		Now:               time.Now,
		BlacklistOnLogout: true,
	}
}

func TestRunLoginOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := RunLogin(ctx, "admin@blog.test", "Secret123", f.loginDeps())
	if res.Failure != LoginFailureNone {
		t.Fatalf("expected success, got %v (%v)", res.Failure, res.Err)
	}
	if f.store.slots["42"] != res.RefreshToken {
		t.Fatal("expected refresh token to be stored")
	}

	unknown := RunLogin(ctx, "nobody@blog.test", "Secret123", f.loginDeps())
	wrong := RunLogin(ctx, "admin@blog.test", "Wrong123", f.loginDeps())
	empty := RunLogin(ctx, "", "", f.loginDeps())
	for _, r := range []LoginResult{unknown, wrong, empty} {
		if r.Failure != LoginFailureInvalidCredentials {
			t.Fatalf("expected identical invalid-credentials failure, got %v", r.Failure)
		}
		if r.AccessToken != "" || r.RefreshToken != "" {
			t.Fatal("expected no tokens on failure")
		}
	}

	u := f.users["42"]
	u.Active = false
	f.users["42"] = u
	if r := RunLogin(ctx, "admin@blog.test", "Secret123", f.loginDeps()); r.Failure != LoginFailureAccountDisabled {
		t.Fatalf("expected disabled failure, got %v", r.Failure)
	}
	if r := RunLogin(ctx, "admin@blog.test", "Wrong123", f.loginDeps()); r.Failure != LoginFailureInvalidCredentials {
		t.Fatalf("expected disabled account with wrong password to look like bad credentials, got %v", r.Failure)
	}
}

type fixedLockout struct {
	remaining time.Duration
	err       error
}

func (l fixedLockout) Locked(context.Context, string) (time.Duration, error) {
	return l.remaining, l.err
}

func (fixedLockout) RecordFailure(context.Context, string) (bool, error) { return false, nil }

func (fixedLockout) Reset(context.Context, string) error { return nil }

func TestRunLoginLockedCarriesRemainingTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	deps := f.loginDeps()
	deps.Lockout = fixedLockout{remaining: 7 * time.Minute}
	res := RunLogin(ctx, "admin@blog.test", "Secret123", deps)
	if res.Failure != LoginFailureLocked || res.RetryAfter != 7*time.Minute {
		t.Fatalf("expected lock with 7m left, got %v %v", res.Failure, res.RetryAfter)
	}
	if res.AccessToken != "" {
		t.Fatal("locked login must not issue tokens")
	}

	deps.Lockout = fixedLockout{err: errDown}
	if res := RunLogin(ctx, "admin@blog.test", "Secret123", deps); res.Failure != LoginFailureStore {
		t.Fatalf("expected store failure when lockout is unreachable, got %v", res.Failure)
	}
}

func TestRunLoginStoreFailureReturnsNoTokens(t *testing.T) {
	f := newFixture(t)
	f.store.fail = true

	res := RunLogin(context.Background(), "admin@blog.test", "Secret123", f.loginDeps())
	if res.Failure != LoginFailureStore {
		t.Fatalf("expected store failure, got %v", res.Failure)
	}
	if res.AccessToken != "" || res.RefreshToken != "" {
		t.Fatal("expected no tokens when refresh token could not be stored")
	}
}

func TestRunLoginUpgradesLegacyHash(t *testing.T) {
	f := newFixture(t)
	legacy, err := password.NewBcrypt(4).Hash("Secret123")
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	u := f.users["42"]
	u.PasswordHash = legacy
	f.users["42"] = u

	deps := f.loginDeps()
	deps.UpgradeOnLogin = true
	res := RunLogin(context.Background(), "admin@blog.test", "Secret123", deps)
	if res.Failure != LoginFailureNone || !res.Upgraded {
		t.Fatalf("expected upgraded login, failure=%v upgraded=%v", res.Failure, res.Upgraded)
	}
	if f.users["42"].PasswordHash == legacy {
		t.Fatal("expected stored hash to be replaced")
	}
}

func TestRunRefreshSupersession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := RunLogin(ctx, "admin@blog.test", "Secret123", f.loginDeps())
	second := RunLogin(ctx, "admin@blog.test", "Secret123", f.loginDeps())

	if r := RunRefresh(ctx, first.RefreshToken, f.refreshDeps(false)); r.Failure != RefreshFailureMismatch {
		t.Fatalf("expected superseded token to be rejected, got %v", r.Failure)
	}
	r := RunRefresh(ctx, second.RefreshToken, f.refreshDeps(false))
	if r.Failure != RefreshFailureNone || r.AccessToken == "" {
		t.Fatalf("expected refresh success, got %v (%v)", r.Failure, r.Err)
	}
	if r.RefreshToken != "" {
		t.Fatal("expected no new refresh token without rotation")
	}
	if f.store.mismatches != 1 {
		t.Fatalf("expected one tracked mismatch, got %d", f.store.mismatches)
	}

	if r := RunRefresh(ctx, second.AccessToken, f.refreshDeps(false)); r.Failure != RefreshFailureToken {
		t.Fatalf("expected access token to be refused as refresh token, got %v", r.Failure)
	}
}

func TestRunRefreshRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	login := RunLogin(ctx, "admin@blog.test", "Secret123", f.loginDeps())
	r := RunRefresh(ctx, login.RefreshToken, f.refreshDeps(true))
	if r.Failure != RefreshFailureNone || r.RefreshToken == "" {
		t.Fatalf("expected rotated pair, got %v (%v)", r.Failure, r.Err)
	}
	if replay := RunRefresh(ctx, login.RefreshToken, f.refreshDeps(true)); replay.Failure != RefreshFailureMismatch {
		t.Fatalf("expected replay of rotated token to fail, got %v", replay.Failure)
	}
	if next := RunRefresh(ctx, r.RefreshToken, f.refreshDeps(true)); next.Failure != RefreshFailureNone {
		t.Fatalf("expected rotated token to work, got %v", next.Failure)
	}
}

func TestRunRefreshDisabledUserLosesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	login := RunLogin(ctx, "admin@blog.test", "Secret123", f.loginDeps())

	u := f.users["42"]
	u.Active = false
	f.users["42"] = u

	if r := RunRefresh(ctx, login.RefreshToken, f.refreshDeps(false)); r.Failure != RefreshFailureAccountStatus {
		t.Fatalf("expected account status failure, got %v", r.Failure)
	}
	if _, ok := f.store.slots["42"]; ok {
		t.Fatal("expected refresh slot to be deleted")
	}
}

func TestRunRefreshDeletedUserWarnsOnCleanupFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	login := RunLogin(ctx, "admin@blog.test", "Secret123", f.loginDeps())

	delete(f.users, "42")
	f.store.failDelete = true

	var warnings []string
	deps := f.refreshDeps(false)
	deps.Warn = func(msg string, _ ...any) { warnings = append(warnings, msg) }

	r := RunRefresh(ctx, login.RefreshToken, deps)
	if r.Failure != RefreshFailureAccountStatus || !errors.Is(r.Err, errNoUser) {
		t.Fatalf("expected account status failure for a deleted user, got %v (%v)", r.Failure, r.Err)
	}
	if len(warnings) != 1 || warnings[0] != "refresh slot cleanup failed" {
		t.Fatalf("expected cleanup warning, got %q", warnings)
	}
}

func TestRunLogoutBlacklistsAndClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	login := RunLogin(ctx, "admin@blog.test", "Secret123", f.loginDeps())

	res := RunLogout(ctx, "42", login.AccessToken, f.logoutDeps())
	if res.Failure != LogoutFailureNone || !res.Blacklisted {
		t.Fatalf("expected blacklisting logout, got %+v", res)
	}
	ttl := f.store.revoked["h:"+login.AccessToken]
	if ttl <= 14*time.Minute || ttl > 15*time.Minute {
		t.Fatalf("expected blacklist ttl close to remaining lifetime, got %v", ttl)
	}
	if r := RunRefresh(ctx, login.RefreshToken, f.refreshDeps(false)); r.Failure != RefreshFailureMismatch {
		t.Fatalf("expected refresh after logout to fail, got %v", r.Failure)
	}

	v := RunValidate(ctx, login.AccessToken, true, ValidateDeps{ParseAccess: f.tokens.ParseAccess, Blacklist: f.store, HashToken: func(s string) string { return "h:" + s }})
	if v.Failure != ValidateFailureBlacklisted {
		t.Fatalf("expected blacklisted, got %v", v.Failure)
	}
	v = RunValidate(ctx, login.AccessToken, false, ValidateDeps{ParseAccess: f.tokens.ParseAccess})
	if v.Failure != ValidateFailureNone {
		t.Fatalf("expected jwt-only validation to pass, got %v", v.Failure)
	}
}

func TestRunLogoutIgnoresForeignToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, _ := f.tokens.CreateAccess("7", "author")

	res := RunLogout(ctx, "42", other, f.logoutDeps())
	if res.Failure != LogoutFailureNone || res.Blacklisted {
		t.Fatalf("expected foreign token to be left alone, got %+v", res)
	}
}

func TestRunChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	login := RunLogin(ctx, "admin@blog.test", "Secret123", f.loginDeps())

	deps := PasswordDeps{
		GetUserByID:        f.byID,
		UpdatePasswordHash: f.updateHash,
		UserNotFound:       errNoUser,
		Hasher:             f.hasher,
		CheckPolicy:        password.DefaultPolicy().Check,
		Tokens:             f.tokens,
		Store:              f.store,
		Blacklist:          f.store,
		HashToken:          func(s string) string { return "h:" + s },
		Now:                time.Now,
	}

	cases := []struct {
		old, next string
		want      PasswordFailureKind
	}{
		{"Wrong123", "NewSecret456", PasswordFailureInvalidOld},
		{"Secret123", "Secret123", PasswordFailureReuse},
		{"Secret123", "weak", PasswordFailurePolicy},
		{"", "NewSecret456", PasswordFailureInvalidInput},
	}
	for _, tc := range cases {
		res := RunChangePassword(ctx, ChangePasswordRequest{SubjectID: "42", OldPassword: tc.old, NewPassword: tc.next}, deps)
		if res.Failure != tc.want {
			t.Fatalf("old=%q new=%q: expected %v, got %v", tc.old, tc.next, tc.want, res.Failure)
		}
	}
	if _, ok := f.store.slots["42"]; !ok {
		t.Fatal("expected failed attempts to leave the session intact")
	}

	res := RunChangePassword(ctx, ChangePasswordRequest{SubjectID: "42", OldPassword: "Secret123", NewPassword: "NewSecret456", AccessToken: login.AccessToken}, deps)
	if res.Failure != PasswordFailureNone {
		t.Fatalf("expected success, got %v (%v)", res.Failure, res.Err)
	}
	if _, ok := f.store.slots["42"]; ok {
		t.Fatal("expected refresh slot to be deleted")
	}
	if _, ok := f.store.revoked["h:"+login.AccessToken]; !ok {
		t.Fatal("expected presented access token to be revoked")
	}
	if ok, _ := f.hasher.Verify("NewSecret456", f.users["42"].PasswordHash); !ok {
		t.Fatal("expected new password to be stored")
	}
}

func TestRunChangePasswordInvalidationFailure(t *testing.T) {
	f := newFixture(t)
	deps := PasswordDeps{
		GetUserByID:        f.byID,
		UpdatePasswordHash: f.updateHash,
		Hasher:             f.hasher,
		Tokens:             f.tokens,
		Store:              f.store,
		Blacklist:          f.store,
		HashToken:          func(s string) string { return s },
		Now:                time.Now,
	}
	f.store.fail = true

	res := RunChangePassword(context.Background(), ChangePasswordRequest{SubjectID: "42", OldPassword: "Secret123", NewPassword: "NewSecret456"}, deps)
	if res.Failure != PasswordFailureInvalidate || !errors.Is(res.Err, errDown) {
		t.Fatalf("expected invalidation failure, got %v (%v)", res.Failure, res.Err)
	}
}

func TestRunValidateStoreFailureDenies(t *testing.T) {
	f := newFixture(t)
	tok, _ := f.tokens.CreateAccess("42", "admin")
	f.store.fail = true

	v := RunValidate(context.Background(), tok, true, ValidateDeps{ParseAccess: f.tokens.ParseAccess, Blacklist: f.store, HashToken: func(s string) string { return s }})
	if v.Failure != ValidateFailureStore || v.Claims != nil {
		t.Fatalf("expected fail-closed store failure, got %+v", v)
	}
}
