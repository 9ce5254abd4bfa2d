//go:build integration
// +build integration

package test

import (
	"testing"

	"github.com/redis/go-redis/v9"

	blogAuth "github.com/MrEthical07/blogAuth"
	"github.com/MrEthical07/blogAuth/password"
	"github.com/MrEthical07/blogAuth/userstore/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newIntegrationEngine(t *testing.T, rdb redis.UniversalClient, mutate func(*blogAuth.Config)) (*blogAuth.Engine, *memory.Store, blogAuth.UserRecord) {
	t.Helper()

	cfg := blogAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(testSecret)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}

	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	users := memory.New()
	user, err := users.Seed(hasher, "a@x.com", "Secret123", "writer")
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}

	engine, err := blogAuth.New().WithConfig(cfg).WithRedis(rdb).WithUserProvider(users).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return engine, users, user
}
