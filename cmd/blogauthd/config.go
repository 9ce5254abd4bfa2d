package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	blogAuth "github.com/MrEthical07/blogAuth"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Session   SessionConfig
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig
	CORS      CORSConfig
	Seed      SeedConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Addr            string
	TrustProxy      bool          `mapstructure:"trust_proxy"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Mode string // "release" or "debug"
}

type RedisConfig struct {
	// Embedded starts an in-process miniredis instead of dialing Addr.
	Embedded bool
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	DSN string
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	Issuer     string
	Audience   string
}

type SessionConfig struct {
	Rotate            bool `mapstructure:"rotate"`
	BlacklistOnLogout bool `mapstructure:"blacklist_on_logout"`
}

type RateLimitConfig struct {
	Enabled bool
}

type CacheConfig struct {
	Prefix string
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// SeedConfig creates one account in the in-memory user store. Ignored when a
// database DSN is set.
type SeedConfig struct {
	Email    string
	Password string
	Role     string
}

type MetricsConfig struct {
	Enabled bool
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.mode", "debug")
	v.SetDefault("redis.embedded", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.dsn", "")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.access_ttl", "15m")
	v.SetDefault("jwt.refresh_ttl", "168h")
	v.SetDefault("session.rotate", false)
	v.SetDefault("session.blacklist_on_logout", true)
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("cache.prefix", "blog")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("seed.email", "")
	v.SetDefault("seed.password", "")
	v.SetDefault("seed.role", "admin")
	v.SetDefault("metrics.enabled", true)

	// Every key needs a default so AutomaticEnv can bind it on Unmarshal.
	v.SetEnvPrefix("BLOGAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found is fine, we rely on env vars or defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// EngineConfig maps the file settings onto the library defaults.
func (c *Config) EngineConfig() blogAuth.Config {
	cfg := blogAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(c.JWT.Secret)
	if c.JWT.AccessTTL > 0 {
		cfg.JWT.AccessTTL = c.JWT.AccessTTL
	}
	if c.JWT.RefreshTTL > 0 {
		cfg.JWT.RefreshTTL = c.JWT.RefreshTTL
	}
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience
	cfg.Session.RotateRefreshTokens = c.Session.Rotate
	cfg.Session.BlacklistOnLogout = c.Session.BlacklistOnLogout
	cfg.RateLimit.Enabled = c.RateLimit.Enabled
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Enabled
	return cfg
}
