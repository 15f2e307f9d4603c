package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"yggproxy/internal/accounts"
	"yggproxy/internal/handshake"
	"yggproxy/internal/health"
	"yggproxy/internal/session"
	"yggproxy/internal/upstream"
)

func main() {
	// Upstream authority. The resolver address must stay an external one:
	// the system resolver is assumed to point the authority hostname back
	// at this process.
	host := envDefault("YGG_UPSTREAM_HOST", "sessionserver.mojang.com")
	resolverAddr := envDefault("YGG_RESOLVER_ADDR", "1.1.1.1:53")
	connector := upstream.NewClient(host, resolverAddr)

	// Account backend
	var resolver accounts.Resolver
	var accountsProbe health.Probe
	switch backend := envDefault("YGG_ACCOUNT_BACKEND", "file"); backend {
	case "file":
		r, err := accounts.NewFileResolver(envDefault("YGG_ACCOUNTS_FILE", "accounts.json"))
		if err != nil {
			log.Fatalf("failed to load accounts: %v", err)
		}
		resolver = r
	case "api":
		endpoint := strings.TrimSpace(os.Getenv("YGG_ACCOUNT_ENDPOINT"))
		if endpoint == "" {
			log.Fatalf("YGG_ACCOUNT_BACKEND=api requires YGG_ACCOUNT_ENDPOINT")
		}
		resolver = accounts.NewAPIResolver(endpoint, strings.TrimSpace(os.Getenv("YGG_ACCOUNT_SECRET")))
	case "postgres":
		db, err := sql.Open("postgres", os.Getenv("YGG_POSTGRES_URL"))
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		resolver = accounts.NewPostgresResolver(db)
		accountsProbe = db.PingContext
	default:
		log.Fatalf("unknown YGG_ACCOUNT_BACKEND %q", backend)
	}

	// Session store
	var store session.Store
	var sessionsProbe health.Probe
	switch backend := envDefault("YGG_SESSION_BACKEND", "file"); backend {
	case "file":
		store = session.NewFileStore(envDefault("YGG_SESSIONS_FILE", "sessions.json"))
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr: envDefault("YGG_REDIS_ADDR", "localhost:6379"),
		})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		store = session.NewRedisStore(rdb)
		sessionsProbe = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	default:
		log.Fatalf("unknown YGG_SESSION_BACKEND %q", backend)
	}

	svc := handshake.New(resolver, store, connector)
	checker := health.New(accountsProbe, sessionsProbe, func(ctx context.Context) error {
		_, err := connector.ResolveAddr(ctx)
		return err
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	limited := handshake.RateLimitMiddleware(handshake.DefaultRateLimitConfig)
	e.POST("/session/minecraft/join", svc.Join, limited)
	e.GET("/session/minecraft/hasJoined", svc.HasJoined, limited)
	e.GET("/healthz", checker.Handler)

	addr := envDefault("YGG_BIND_ADDRESS", "0.0.0.0:3000")
	log.Printf("session proxy for %s listening on %s", host, addr)
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server stopped: %v", err)
	}
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
