// Command blogauthd serves the blog authentication API.
//
// Configuration comes from config.yaml (or -config) and BLOGAUTH_* environment
// variables, for example BLOGAUTH_JWT_SECRET and BLOGAUTH_REDIS_ADDR. With
// BLOGAUTH_REDIS_EMBEDDED=true and no database DSN it runs self-contained on
// an in-process Redis and an in-memory user store seeded from seed.*.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	blogAuth "github.com/MrEthical07/blogAuth"
	"github.com/MrEthical07/blogAuth/cache"
	"github.com/MrEthical07/blogAuth/httpapi"
	otelexport "github.com/MrEthical07/blogAuth/metrics/export/otel"
	promexport "github.com/MrEthical07/blogAuth/metrics/export/prometheus"
	"github.com/MrEthical07/blogAuth/password"
	"github.com/MrEthical07/blogAuth/userstore/memory"
	"github.com/MrEthical07/blogAuth/userstore/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Log.Mode)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("blogauthd stopped", zap.Error(err))
	}
}

func newLogger(mode string) *zap.Logger {
	var l *zap.Logger
	var err error
	if mode == "release" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return l
}

func run(ctx context.Context, cfg *Config, logger *zap.Logger) error {
	rdb, closeRedis, err := openRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	engineCfg := cfg.EngineConfig()

	users, closeUsers, err := openUsers(ctx, cfg, engineCfg, logger)
	if err != nil {
		return err
	}
	defer closeUsers()

	engine, err := blogAuth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithLogger(logger.Named("auth")).
		Build()
	if err != nil {
		return err
	}

	meterExporter, err := otelexport.New(otel.Meter("blogauthd"), engine)
	if err != nil {
		return err
	}
	defer func() { _ = meterExporter.Close() }()

	api := httpapi.New(httpapi.Options{
		Engine:     engine,
		Cache:      cache.NewRedis(rdb, cfg.Cache.Prefix, logger.Named("cache")),
		Logger:     logger.Named("http"),
		TrustProxy: cfg.Server.TrustProxy,
	})

	mux := http.NewServeMux()
	mux.Handle("/", api.Routes())
	mux.Handle("GET /metrics", promexport.New(engine).Handler())

	co := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"WWW-Authenticate", "Retry-After"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           co.Handler(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRedis(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Embedded {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("using embedded redis; sessions are lost on restart", zap.String("addr", mr.Addr()))
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return rdb, func() {
			_ = rdb.Close()
			mr.Close()
		}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return rdb, func() { _ = rdb.Close() }, nil
}

func openUsers(ctx context.Context, cfg *Config, engineCfg blogAuth.Config, logger *zap.Logger) (blogAuth.UserProvider, func(), error) {
	if cfg.Database.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(db), func() { _ = db.Close() }, nil
	}

	store := memory.New()
	if cfg.Seed.Email == "" || cfg.Seed.Password == "" {
		logger.Warn("in-memory user store has no accounts; set seed.email and seed.password")
		return store, func() {}, nil
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      engineCfg.Password.Memory,
		Time:        engineCfg.Password.Time,
		Parallelism: engineCfg.Password.Parallelism,
		SaltLength:  engineCfg.Password.SaltLength,
		KeyLength:   engineCfg.Password.KeyLength,
	})
	if err != nil {
		return nil, nil, err
	}
	rec, err := store.Seed(hasher, cfg.Seed.Email, cfg.Seed.Password, cfg.Seed.Role)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("seeded user", zap.String("subject_id", rec.ID), zap.String("role", rec.Role))
	return store, func() {}, nil
}
