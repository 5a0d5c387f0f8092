package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"authd/pkg/lockout"
	"authd/pkg/policy"
	"authd/pkg/revocation"
	"authd/pkg/sessions"
	"authd/pkg/tokens"
)

// Wired singletons; built once in buildServices, read by the handlers.
var (
	authSvc         *AuthService
	lockoutTracker  *lockout.Tracker
	sessionRegistry *sessions.Registry
	revocationStore revocation.Store
	policyResolver  *policy.Resolver
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	// Support a lightweight migrate command: `./authd migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB(cfg)
		fmt.Println("migration and seeding completed")
		return
	}

	initDB(cfg)
	sweeper, err := buildServices(cfg)
	if err != nil {
		log.Fatal(err)
	}
	sweeper.Start()

	r := gin.Default()
	setupRoutes(r)
	r.Run(cfg.Addr)
}

// buildServices wires the stores, codec and service from configuration. The
// default policy must already be seeded; a missing one aborts startup
// (fail-closed, never "no policy").
func buildServices(cfg *Config) (*revocation.Sweeper, error) {
	key, err := keySource(cfg)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	codec := tokens.NewCodec(key)

	revocationStore, err = buildRevocationStore(cfg)
	if err != nil {
		return nil, err
	}

	policyResolver = policy.NewResolver(policy.NewGormStore(db))
	if err := policyResolver.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("loading security policies: %w", err)
	}

	lockoutTracker = lockout.NewTracker(lockout.NewGormStore(db))
	sessionRegistry = sessions.NewRegistry(sessions.NewGormStore(db))
	authSvc = NewAuthService(codec, revocationStore, sessionRegistry, lockoutTracker,
		policyResolver, &dbVerifier{db: db}, cfg.AccessTTL, cfg.RefreshTTL)

	return revocation.NewSweeper(revocationStore, cfg.PurgeInterval), nil
}

func keySource(cfg *Config) (tokens.KeyFunc, error) {
	if cfg.JWTKeyFile != "" {
		kf, err := tokens.WatchKeyFile(cfg.JWTKeyFile)
		if err != nil {
			return nil, err
		}
		return kf.Func(), nil
	}
	return tokens.StaticKey([]byte(cfg.JWTSecret)), nil
}

func buildRevocationStore(cfg *Config) (revocation.Store, error) {
	switch cfg.RevocationBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		// the blacklist is load-bearing on every request; refuse to start
		// without it rather than degrade
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("redis revocation backend unreachable: %w", err)
		}
		log.Println("[REVOCATION] using redis backend")
		return revocation.NewRedisStore(client), nil
	case "memory":
		log.Println("[REVOCATION] using in-process memory backend (single-process deployments only)")
		return revocation.NewMemoryStore(), nil
	default:
		store := revocation.NewGormStore(db)
		store.MakeUnlogged()
		log.Println("[REVOCATION] using postgres backend (UNLOGGED)")
		return store, nil
	}
}
