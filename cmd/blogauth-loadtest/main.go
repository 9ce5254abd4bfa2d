// Command blogauth-loadtest drives an in-process blogauth server.
//
// Phase one measures strict access token validation through GET /auth/me.
// Phase two waits for every access token to expire and then fires a burst of
// concurrent requests per client through a refresh coordinator, checking that
// each client refreshed exactly once.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	blogAuth "github.com/MrEthical07/blogAuth"
	"github.com/MrEthical07/blogAuth/client"
	"github.com/MrEthical07/blogAuth/httpapi"
	"github.com/MrEthical07/blogAuth/password"
	"github.com/MrEthical07/blogAuth/userstore/memory"
)

const loadPassword = "LoadTest123"

type simClient struct {
	coord     *client.Coordinator
	http      *http.Client
	refreshes atomic.Int64
}

func main() {
	var (
		clients     = flag.Int("clients", 50, "number of logged-in clients")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers for the validate phase")
		ops         = flag.Int("ops", 20000, "validate operations")
		burst       = flag.Int("burst", 10, "concurrent requests per client once the access token expired")
		accessTTL   = flag.Duration("access-ttl", 2*time.Second, "access token lifetime")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *ops <= 0 || *burst <= 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency, ops and burst must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	rdb, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	srv, err := startServer(rdb, *clients, *accessTTL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server setup failed: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close()

	fmt.Printf("logging in %d clients...\n", *clients)
	startLogin := time.Now()
	sims := make([]*simClient, *clients)
	for i := range sims {
		sim, err := loginClient(ctx, srv.URL, i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		sims[i] = sim
	}
	fmt.Printf("logged in in %s\n", time.Since(startLogin).Round(time.Millisecond))

	validate := runValidatePhase(srv.URL, sims, *ops, *concurrency)

	// Tokens refreshed during the validate phase were issued before it ended.
	validateDone := time.Now()
	if wait := time.Until(validateDone.Add(*accessTTL + 1100*time.Millisecond)); wait > 0 {
		fmt.Printf("waiting %s for access tokens to expire...\n", wait.Round(time.Millisecond))
		time.Sleep(wait)
	}
	storm, refreshes := runStormPhase(srv.URL, sims, *burst)

	fmt.Println("---- results ----")
	fmt.Println(validate.report("validate"))
	fmt.Println(storm.report("expired-burst"))
	fmt.Printf("refresh calls: %d for %d clients\n", refreshes, len(sims))
	if refreshes != int64(len(sims)) {
		fmt.Fprintln(os.Stderr, "expected exactly one refresh per client")
		os.Exit(1)
	}
}

// openRedis connects to addr, or REDIS_ADDR, or an embedded miniredis when
// neither is set.
func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return rdb, func() { _ = rdb.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}

func startServer(rdb redis.UniversalClient, clients int, accessTTL time.Duration) (*httptest.Server, error) {
	cfg := blogAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("loadtest-secret-0123456789abcdef")
	cfg.JWT.AccessTTL = accessTTL
	cfg.JWT.Leeway = 0
	cfg.RateLimit.Enabled = false
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(loadPassword)
	if err != nil {
		return nil, err
	}

	users := memory.New()
	for i := 0; i < clients; i++ {
		if _, err := users.Put(blogAuth.UserRecord{
			Email:        userEmail(i),
			PasswordHash: hash,
			Role:         "writer",
			Status:       blogAuth.AccountActive,
		}); err != nil {
			return nil, err
		}
	}

	engine, err := blogAuth.New().WithConfig(cfg).WithRedis(rdb).WithUserProvider(users).Build()
	if err != nil {
		return nil, err
	}
	return httptest.NewServer(httpapi.New(httpapi.Options{Engine: engine}).Routes()), nil
}

func userEmail(i int) string {
	return fmt.Sprintf("writer-%d@blog.test", i)
}

func loginClient(ctx context.Context, baseURL string, i int) (*simClient, error) {
	body, err := json.Marshal(httpapi.LoginRequest{Email: userEmail(i), Password: loadPassword})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login %s: status %d", userEmail(i), resp.StatusCode)
	}
	var res httpapi.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, err
	}

	sim := &simClient{}
	refresher := &client.HTTPRefresher{BaseURL: baseURL}
	coord, err := client.NewCoordinator(client.Config{
		Refresher: client.RefresherFunc(func(ctx context.Context, rt string) (client.TokenPair, error) {
			sim.refreshes.Add(1)
			return refresher.Refresh(ctx, rt)
		}),
		MaxQueue: 1024,
	})
	if err != nil {
		return nil, err
	}
	coord.SetTokens(client.TokenPair{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken})
	sim.coord = coord
	sim.http = coord.Client()
	return sim, nil
}

func get(hc *http.Client, url string) error {
	resp, err := hc.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// recorder collects request latencies from many goroutines.
type recorder struct {
	mu       sync.Mutex
	samples  []time.Duration
	failures int
	start    time.Time
	elapsed  time.Duration
}

func newRecorder(capacity int) *recorder {
	return &recorder{samples: make([]time.Duration, 0, capacity), start: time.Now()}
}

func (r *recorder) do(fn func() error) {
	t0 := time.Now()
	err := fn()
	d := time.Since(t0)

	r.mu.Lock()
	r.samples = append(r.samples, d)
	if err != nil {
		r.failures++
	}
	r.mu.Unlock()
}

func (r *recorder) stop() *recorder {
	r.elapsed = time.Since(r.start)
	slices.Sort(r.samples)
	return r
}

// quantile uses the nearest-rank method on sorted samples.
func (r *recorder) quantile(q float64) time.Duration {
	if len(r.samples) == 0 {
		return 0
	}
	i := int(q*float64(len(r.samples))+0.5) - 1
	return r.samples[max(0, min(i, len(r.samples)-1))]
}

func (r *recorder) report(name string) string {
	rate := 0.0
	if r.elapsed > 0 {
		rate = float64(len(r.samples)) / r.elapsed.Seconds()
	}
	return fmt.Sprintf("%-14s ops=%d failures=%d elapsed=%s rate=%.0f/s p50=%s p95=%s p99=%s",
		name, len(r.samples), r.failures, r.elapsed.Round(time.Millisecond), rate,
		r.quantile(0.50).Round(time.Microsecond),
		r.quantile(0.95).Round(time.Microsecond),
		r.quantile(0.99).Round(time.Microsecond))
}

// runValidatePhase spreads ops strict validations over random clients.
func runValidatePhase(baseURL string, sims []*simClient, ops, concurrency int) *recorder {
	rec := newRecorder(ops)
	jobs := make(chan *simClient)

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sim := range jobs {
				rec.do(func() error { return get(sim.http, baseURL+"/auth/me") })
			}
		}()
	}
	for i := 0; i < ops; i++ {
		jobs <- sims[rand.IntN(len(sims))]
	}
	close(jobs)
	wg.Wait()
	return rec.stop()
}

// runStormPhase fires burst concurrent requests per client at once and
// returns the total number of refresh calls made.
func runStormPhase(baseURL string, sims []*simClient, burst int) (*recorder, int64) {
	for _, sim := range sims {
		sim.refreshes.Store(0)
	}

	rec := newRecorder(len(sims) * burst)
	var wg sync.WaitGroup
	for _, sim := range sims {
		for b := 0; b < burst; b++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rec.do(func() error { return get(sim.http, baseURL+"/auth/me") })
			}()
		}
	}
	wg.Wait()

	var refreshes int64
	for _, sim := range sims {
		refreshes += sim.refreshes.Load()
	}
	return rec.stop(), refreshes
}
