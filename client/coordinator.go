package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the session state of a [Coordinator].
type State int

const (
	// StateIdle holds a session and no refresh is running.
	StateIdle State = iota
	// StateRefreshing has exactly one refresh call in flight.
	StateRefreshing
	// StateAnonymous holds no usable session.
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

const (
	defaultMaxQueue       = 64
	defaultRefreshTimeout = 10 * time.Second
	defaultLogoutPath     = "/auth/logout"
	maxExpiredBodyBytes   = 64 << 10
)

// Config configures a [Coordinator]. Refresher is required.
type Config struct {
	Transport http.RoundTripper
	Refresher Refresher
	// LogoutPath is sent once and never waits on or triggers a refresh.
	// Defaults to "/auth/logout".
	LogoutPath string
	// MaxQueue caps the requests waiting on one refresh. A waiter whose
	// context ends leaves the queue.
	MaxQueue       int
	RefreshTimeout time.Duration
	// IsExpired reports whether a response asks for a refresh. Defaults to
	// [IsTokenExpired].
	IsExpired func(*http.Response) bool
	// OnSessionEnded fires once when a refresh fails and the session ends.
	OnSessionEnded func(error)
	Logger         *zap.Logger
}

type outcome struct {
	token string
	err   error
}

// Coordinator attaches the access token to outgoing requests and serializes
// token refreshes. It is safe for concurrent use.
type Coordinator struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	access  string
	refresh string
	epoch   uint64
	waiters []chan outcome
	endErr  error
	ended   bool
}

// NewCoordinator returns an anonymous Coordinator. Call SetTokens after login.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Refresher == nil {
		return nil, errors.New("client: Refresher required")
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.LogoutPath == "" {
		cfg.LogoutPath = defaultLogoutPath
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = defaultMaxQueue
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = defaultRefreshTimeout
	}
	if cfg.IsExpired == nil {
		cfg.IsExpired = IsTokenExpired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator{
		cfg:    cfg,
		logger: logger.Named("refresh"),
		state:  StateAnonymous,
		endErr: ErrNoSession,
	}, nil
}

// Client returns an http.Client that routes through c.
func (c *Coordinator) Client() *http.Client {
	return &http.Client{Transport: c}
}

// SetTokens installs a session, typically after login, and re-arms the
// coordinator. A refresh still in flight is discarded and its waiters
// receive the new access token.
func (c *Coordinator) SetTokens(pair TokenPair) {
	c.mu.Lock()
	var waiters []chan outcome
	if c.state == StateRefreshing {
		c.epoch++
		waiters = c.waiters
		c.waiters = nil
	}
	c.access = pair.AccessToken
	c.refresh = pair.RefreshToken
	c.state = StateIdle
	c.ended = false
	c.endErr = nil
	c.mu.Unlock()

	deliver(waiters, outcome{token: pair.AccessToken})
}

// Tokens returns the current credentials.
func (c *Coordinator) Tokens() TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TokenPair{AccessToken: c.access, RefreshToken: c.refresh}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of requests waiting on the refresh in flight.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Clear drops the session on logout or navigation away. Waiting requests
// fail with [ErrSessionCleared] and a refresh still in flight is ignored
// when it returns.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.epoch++
	waiters := c.waiters
	c.waiters = nil
	c.state = StateAnonymous
	c.access = ""
	c.refresh = ""
	c.endErr = ErrSessionCleared
	c.ended = true
	c.mu.Unlock()

	deliver(waiters, outcome{err: ErrSessionCleared})
}

// RoundTrip implements [http.RoundTripper].
func (c *Coordinator) RoundTrip(req *http.Request) (*http.Response, error) {
	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	token := c.Tokens().AccessToken
	resp, err := c.send(req, getBody, token)
	if err != nil {
		return nil, err
	}
	if req.URL.Path == c.cfg.LogoutPath {
		return resp, nil
	}
	if token == "" || !c.cfg.IsExpired(resp) {
		return resp, nil
	}

	drain(resp)

	next, err := c.awaitToken(req.Context(), token)
	if err != nil {
		return nil, err
	}
	return c.send(req, getBody, next)
}

// awaitToken returns an access token newer than stale, starting the refresh
// when none is running.
func (c *Coordinator) awaitToken(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	switch c.state {
	case StateAnonymous:
		err := c.endErr
		c.mu.Unlock()
		return "", err
	case StateIdle:
		if c.access != stale && c.access != "" {
			token := c.access
			c.mu.Unlock()
			return token, nil
		}
		ch := make(chan outcome, 1)
		c.waiters = append(c.waiters, ch)
		c.state = StateRefreshing
		epoch := c.epoch
		refreshToken := c.refresh
		c.mu.Unlock()

		go c.runRefresh(context.WithoutCancel(ctx), epoch, refreshToken)
		return c.wait(ctx, ch)
	default:
		if len(c.waiters) >= c.cfg.MaxQueue {
			c.mu.Unlock()
			return "", ErrQueueFull
		}
		ch := make(chan outcome, 1)
		c.waiters = append(c.waiters, ch)
		c.mu.Unlock()
		return c.wait(ctx, ch)
	}
}

func (c *Coordinator) runRefresh(parent context.Context, epoch uint64, refreshToken string) {
	ctx, cancel := context.WithTimeout(parent, c.cfg.RefreshTimeout)
	defer cancel()

	var (
		pair TokenPair
		err  error
	)
	if refreshToken == "" {
		err = ErrNoSession
	} else {
		c.logger.Debug("refresh started")
		pair, err = c.cfg.Refresher.Refresh(ctx, refreshToken)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.logger.Debug("refresh result discarded")
		return
	}
	waiters := c.waiters
	c.waiters = nil

	var (
		result  outcome
		endedBy error
	)
	if err == nil {
		c.access = pair.AccessToken
		if pair.RefreshToken != "" {
			c.refresh = pair.RefreshToken
		}
		c.state = StateIdle
		result = outcome{token: pair.AccessToken}
	} else {
		rerr := &RefreshError{Err: err}
		c.access = ""
		c.refresh = ""
		c.state = StateAnonymous
		c.endErr = rerr
		if !c.ended {
			c.ended = true
			endedBy = rerr
		}
		result = outcome{err: rerr}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("refresh failed", zap.Int("waiters", len(waiters)), zap.Error(err))
	} else {
		c.logger.Debug("refresh succeeded", zap.Int("waiters", len(waiters)))
	}

	deliver(waiters, result)

	if endedBy != nil && c.cfg.OnSessionEnded != nil {
		c.cfg.OnSessionEnded(endedBy)
	}
}

func (c *Coordinator) send(req *http.Request, getBody func() (io.ReadCloser, error), token string) (*http.Response, error) {
	r := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, err
		}
		r.Body = body
		r.GetBody = getBody
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return c.cfg.Transport.RoundTrip(r)
}

// wait blocks for the refresh outcome. A cancelled waiter removes itself so
// it no longer counts toward MaxQueue.
func (c *Coordinator) wait(ctx context.Context, ch chan outcome) (string, error) {
	select {
	case o := <-ch:
		return o.token, o.err
	case <-ctx.Done():
		c.mu.Lock()
		if i := slices.Index(c.waiters, ch); i >= 0 {
			c.waiters = slices.Delete(c.waiters, i, i+1)
		}
		c.mu.Unlock()
		return "", ctx.Err()
	}
}

func deliver(waiters []chan outcome, o outcome) {
	for _, ch := range waiters {
		ch <- o
	}
}

// replayableBody returns a body factory so the request can be sent twice.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxExpiredBodyBytes))
	_ = resp.Body.Close()
}

// IsTokenExpired reports a 401 carrying the token_expired marker, either in
// the WWW-Authenticate challenge or as the JSON error code. Generic 401s are
// not expiry.
func IsTokenExpired(resp *http.Response) bool {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return false
	}
	for _, v := range resp.Header.Values("WWW-Authenticate") {
		if strings.Contains(v, `error_description="token_expired"`) {
			return true
		}
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") || resp.Body == nil {
		return false
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxExpiredBodyBytes))
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(buf))
	if err != nil {
		return false
	}
	var body struct {
		Code string `json:"code"`
	}
	return json.Unmarshal(buf, &body) == nil && body.Code == "token_expired"
}
