package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full environment surface, built once in main and passed into
// constructors. No ambient globals beyond the wired singletons.
type Config struct {
	Addr string
	DSN  string

	// JWTSecret is used directly unless JWTKeyFile is set, in which case the
	// key is read from the file and hot-reloaded on change.
	JWTSecret  string
	JWTKeyFile string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// RevocationBackend selects the blacklist store: postgres (default),
	// redis, or memory (single-process only).
	RevocationBackend string
	RedisAddr         string
	RedisPassword     string

	PurgeInterval time.Duration
	AutoMigrate   bool
}

func loadConfig() (*Config, error) {
	// .env is a development convenience; absence is fine
	_ = godotenv.Load()

	cfg := &Config{
		Addr:              envOr("LISTEN_ADDR", ":8081"),
		DSN:               os.Getenv("DB_DSN"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		JWTKeyFile:        os.Getenv("JWT_SECRET_FILE"),
		AccessTTL:         envDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:        envDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		RevocationBackend: strings.ToLower(envOr("REVOCATION_BACKEND", "postgres")),
		RedisAddr:         envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		PurgeInterval:     envDuration("PURGE_INTERVAL", 30*time.Minute),
		AutoMigrate:       envBool("DB_AUTO_MIGRATE", true),
	}
	if cfg.JWTSecret == "" && cfg.JWTKeyFile == "" {
		cfg.JWTSecret = "dev-insecure-secret-change" // development fallback
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, fmt.Errorf("access token TTL (%s) must be shorter than refresh token TTL (%s)", cfg.AccessTTL, cfg.RefreshTTL)
	}
	switch cfg.RevocationBackend {
	case "postgres", "redis", "memory":
	default:
		return nil, fmt.Errorf("unknown REVOCATION_BACKEND %q", cfg.RevocationBackend)
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return def
	}
	return !(v == "false" || v == "0" || v == "no")
}
