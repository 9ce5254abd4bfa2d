package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// tokenServer accepts only the bearer token in valid and answers any other
// token with the expiry challenge.
type tokenServer struct {
	mu      sync.Mutex
	valid   string
	expired atomic.Int64
	bodies  []string
	logouts atomic.Int64
	generic bool
	srv     *httptest.Server
}

func newTokenServer(t *testing.T, valid string) *tokenServer {
	t.Helper()
	ts := &tokenServer{valid: valid}
	ts.srv = httptest.NewServer(http.HandlerFunc(ts.serve))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *tokenServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/auth/logout" {
		ts.logouts.Add(1)
		w.WriteHeader(http.StatusOK)
		return
	}

	ts.mu.Lock()
	valid := ts.valid
	generic := ts.generic
	ts.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+valid {
		if generic {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		ts.expired.Add(1)
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="token_expired"`)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if r.Body != nil {
		b, _ := io.ReadAll(r.Body)
		ts.mu.Lock()
		ts.bodies = append(ts.bodies, string(b))
		ts.mu.Unlock()
	}
	_, _ = w.Write([]byte("ok"))
}

// gatedRefresher blocks until release is closed and counts calls.
type gatedRefresher struct {
	calls   atomic.Int64
	release chan struct{}
	pair    TokenPair
	err     error
}

func newGatedRefresher(pair TokenPair, err error) *gatedRefresher {
	return &gatedRefresher{release: make(chan struct{}), pair: pair, err: err}
}

func (g *gatedRefresher) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return TokenPair{}, ctx.Err()
	}
	return g.pair, g.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func get(c *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func TestConcurrentExpiredRequestsShareOneRefresh(t *testing.T) {
	ts := newTokenServer(t, "access-2")
	ref := newGatedRefresher(TokenPair{AccessToken: "access-2"}, nil)
	c, err := NewCoordinator(Config{Refresher: ref})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})
	hc := c.Client()

	const n = 10
	var (
		wg   sync.WaitGroup
		oks  atomic.Int64
		errs = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := get(hc, ts.srv.URL+"/posts")
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				oks.Add(1)
			}
		}()
	}

	waitFor(t, func() bool { return ts.expired.Load() == n })
	close(ref.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("request failed: %v", err)
	}
	if oks.Load() != n {
		t.Fatalf("expected %d successful replays, got %d", n, oks.Load())
	}
	if ref.calls.Load() != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", ref.calls.Load())
	}
	if c.State() != StateIdle || c.Pending() != 0 {
		t.Fatalf("expected idle with empty queue, got %s/%d", c.State(), c.Pending())
	}
	if got := c.Tokens(); got.AccessToken != "access-2" || got.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected tokens %+v", got)
	}
}

func TestRefreshFailureFailsEveryWaiterOnce(t *testing.T) {
	ts := newTokenServer(t, "never")
	cause := errors.New("invalid_or_expired_refresh_token")
	ref := newGatedRefresher(TokenPair{}, cause)

	var ended atomic.Int64
	c, err := NewCoordinator(Config{
		Refresher:      ref,
		OnSessionEnded: func(error) { ended.Add(1) },
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})
	hc := c.Client()

	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := get(hc, ts.srv.URL+"/posts")
			if err == nil {
				resp.Body.Close()
			}
			errs <- err
		}()
	}

	waitFor(t, func() bool { return ts.expired.Load() == n })
	close(ref.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		var rerr *RefreshError
		if !errors.As(err, &rerr) || !errors.Is(err, cause) {
			t.Fatalf("expected RefreshError wrapping cause, got %v", err)
		}
	}
	if ref.calls.Load() != 1 {
		t.Fatalf("expected one refresh call, got %d", ref.calls.Load())
	}
	if ended.Load() != 1 {
		t.Fatalf("expected OnSessionEnded once, got %d", ended.Load())
	}
	if c.State() != StateAnonymous || c.Tokens().RefreshToken != "" {
		t.Fatal("expected anonymous session without tokens")
	}

	resp, err := get(hc, ts.srv.URL+"/posts")
	if err != nil {
		t.Fatalf("anonymous request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous request should reach the server unauthenticated, got %d", resp.StatusCode)
	}
	if ref.calls.Load() != 1 {
		t.Fatal("anonymous session must not refresh again")
	}
}

func TestGenericUnauthorizedPassesThrough(t *testing.T) {
	ts := newTokenServer(t, "other")
	ts.generic = true
	ref := newGatedRefresher(TokenPair{AccessToken: "x"}, nil)
	close(ref.release)

	c, err := NewCoordinator(Config{Refresher: ref})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	resp, err := get(c.Client(), ts.srv.URL+"/posts")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 passthrough, got %d", resp.StatusCode)
	}
	if ref.calls.Load() != 0 {
		t.Fatal("generic 401 must not trigger a refresh")
	}
}

func TestLogoutPathNeverQueued(t *testing.T) {
	ts := newTokenServer(t, "access-2")
	ref := newGatedRefresher(TokenPair{AccessToken: "access-2"}, nil)
	c, err := NewCoordinator(Config{Refresher: ref, LogoutPath: "/auth/logout"})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})
	hc := c.Client()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if resp, err := get(hc, ts.srv.URL+"/posts"); err == nil {
			resp.Body.Close()
		}
	}()
	waitFor(t, func() bool { return c.State() == StateRefreshing })

	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/auth/logout", nil)
	resp, err := hc.Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || ts.logouts.Load() != 1 {
		t.Fatalf("logout should complete during refresh, got %d", resp.StatusCode)
	}
	if c.Pending() != 1 {
		t.Fatalf("logout must not join the queue, pending=%d", c.Pending())
	}

	close(ref.release)
	<-done
}

func TestDefaultConfigSendsExpiredLogoutOnce(t *testing.T) {
	var logouts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logouts.Add(1)
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="token_expired"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	ref := newGatedRefresher(TokenPair{AccessToken: "access-2"}, nil)
	close(ref.release)
	c, err := NewCoordinator(Config{Refresher: ref})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/auth/logout", nil)
	resp, err := c.Client().Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected the server's 401 back, got %d", resp.StatusCode)
	}
	if n := ref.calls.Load(); n != 0 {
		t.Fatalf("logout must not refresh, got %d refresh calls", n)
	}
	if n := logouts.Load(); n != 1 {
		t.Fatalf("logout must be sent once, got %d", n)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle, got %s", c.State())
	}
}

func TestClearDiscardsInFlightRefresh(t *testing.T) {
	ts := newTokenServer(t, "access-2")
	ref := newGatedRefresher(TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil)
	var ended atomic.Int64
	c, err := NewCoordinator(Config{Refresher: ref, OnSessionEnded: func(error) { ended.Add(1) }})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	errCh := make(chan error, 1)
	go func() {
		resp, err := get(c.Client(), ts.srv.URL+"/posts")
		if err == nil {
			resp.Body.Close()
		}
		errCh <- err
	}()
	waitFor(t, func() bool { return c.Pending() == 1 })

	c.Clear()
	if err := <-errCh; !errors.Is(err, ErrSessionCleared) {
		t.Fatalf("expected ErrSessionCleared, got %v", err)
	}

	close(ref.release)
	waitFor(t, func() bool { return ref.calls.Load() == 1 })
	time.Sleep(20 * time.Millisecond)

	if got := c.Tokens(); got.AccessToken != "" || got.RefreshToken != "" {
		t.Fatalf("late refresh result must be discarded, got %+v", got)
	}
	if c.State() != StateAnonymous {
		t.Fatalf("expected anonymous, got %s", c.State())
	}
	if ended.Load() != 0 {
		t.Fatal("Clear is not a session failure")
	}
}

func TestQueueOverflow(t *testing.T) {
	ts := newTokenServer(t, "access-2")
	ref := newGatedRefresher(TokenPair{AccessToken: "access-2"}, nil)
	c, err := NewCoordinator(Config{Refresher: ref, MaxQueue: 1})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})
	hc := c.Client()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if resp, err := get(hc, ts.srv.URL+"/posts"); err == nil {
			resp.Body.Close()
		}
	}()
	waitFor(t, func() bool { return c.Pending() == 1 })

	resp, err := get(hc, ts.srv.URL+"/posts")
	if err == nil {
		resp.Body.Close()
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(ref.release)
	<-done
}

func TestCancelledWaiterLeavesQueue(t *testing.T) {
	ts := newTokenServer(t, "access-2")
	ref := newGatedRefresher(TokenPair{AccessToken: "access-2"}, nil)
	c, err := NewCoordinator(Config{Refresher: ref, MaxQueue: 2})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})
	hc := c.Client()

	results := make(chan error, 2)
	fetch := func(ctx context.Context) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.srv.URL+"/posts", nil)
		resp, err := hc.Do(req)
		if err == nil {
			if resp.StatusCode != http.StatusOK {
				err = errors.New(resp.Status)
			}
			resp.Body.Close()
		}
		results <- err
	}

	go fetch(context.Background())
	waitFor(t, func() bool { return c.Pending() == 1 })

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.srv.URL+"/posts", nil)
		resp, err := hc.Do(req)
		if err == nil {
			resp.Body.Close()
		}
		cancelled <- err
	}()
	waitFor(t, func() bool { return c.Pending() == 2 })
	cancel()
	if err := <-cancelled; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if c.Pending() != 1 {
		t.Fatalf("cancelled waiter still queued, pending=%d", c.Pending())
	}

	go fetch(context.Background())
	waitFor(t, func() bool { return c.Pending() == 2 })

	close(ref.release)
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			t.Fatalf("queued request %d: %v", i, err)
		}
	}
	if n := ref.calls.Load(); n != 1 {
		t.Fatalf("expected one refresh, got %d", n)
	}
}

func TestStaleTokenReplaysWithoutRefresh(t *testing.T) {
	ref := newGatedRefresher(TokenPair{}, errors.New("should not be called"))
	close(ref.release)
	c, err := NewCoordinator(Config{Refresher: ref})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-2", RefreshToken: "refresh-1"})

	tok, err := c.awaitToken(context.Background(), "access-1")
	if err != nil || tok != "access-2" {
		t.Fatalf("expected current token, got %q %v", tok, err)
	}
	if ref.calls.Load() != 0 {
		t.Fatal("stale token must not trigger a refresh")
	}
}

func TestReplayResendsBody(t *testing.T) {
	ts := newTokenServer(t, "access-2")
	ref := newGatedRefresher(TokenPair{AccessToken: "access-2"}, nil)
	close(ref.release)
	c, err := NewCoordinator(Config{Refresher: ref})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	req, _ := http.NewRequest(http.MethodPost, ts.srv.URL+"/posts", io.NopCloser(strings.NewReader(`{"title":"hello"}`)))
	resp, err := c.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if len(ts.bodies) != 1 || ts.bodies[0] != `{"title":"hello"}` {
		t.Fatalf("expected replayed body, got %q", ts.bodies)
	}
}

func TestWaiterContextCancel(t *testing.T) {
	ts := newTokenServer(t, "access-2")
	ref := newGatedRefresher(TokenPair{AccessToken: "access-2"}, nil)
	c, err := NewCoordinator(Config{Refresher: ref})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	c.SetTokens(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.srv.URL+"/posts", nil)
	errCh := make(chan error, 1)
	go func() {
		resp, err := c.Client().Do(req)
		if err == nil {
			resp.Body.Close()
		}
		errCh <- err
	}()
	waitFor(t, func() bool { return c.Pending() == 1 })
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(ref.release)
	waitFor(t, func() bool { return c.State() == StateIdle })
	if c.Tokens().AccessToken != "access-2" {
		t.Fatal("refresh must complete although the initiating request was cancelled")
	}
}

func TestIsTokenExpiredJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"token_expired","message":"access token expired"}`))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if !IsTokenExpired(resp) {
		t.Fatal("expected JSON code to be recognised")
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "token_expired") {
		t.Fatal("body must remain readable")
	}
}

func TestNewCoordinatorRequiresRefresher(t *testing.T) {
	if _, err := NewCoordinator(Config{}); err == nil {
		t.Fatal("expected error")
	}
}
