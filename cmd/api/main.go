package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"worklane.org/internal/auth"
	"worklane.org/internal/cache"
	"worklane.org/internal/gateway"
	"worklane.org/internal/httpapi"
	"worklane.org/internal/mail"
	"worklane.org/internal/obs"
	"worklane.org/internal/session"
	"worklane.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// Observability first: metrics registration and the JSON logger.
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("WORKLANE_PG_DSN")
	if dsn == "" {
		log.Fatal("WORKLANE_PG_DSN is required")
	}
	authSecret := os.Getenv("WORKLANE_AUTH_SECRET")
	cookieSecret := os.Getenv("WORKLANE_COOKIE_SECRET")

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	codec, err := auth.NewTokenCodec([]byte(authSecret))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	sessions, err := session.NewStore(codec, []byte(cookieSecret))
	if err != nil {
		log.Fatalf("session store: %v", err)
	}

	// Redis when configured, otherwise an in-process cache so a single
	// instance runs without extra infrastructure.
	var kv cache.KV
	probe := httpapi.ReadyProbe{DB: store.DB()}
	if addr := os.Getenv("WORKLANE_REDIS_ADDR"); addr != "" {
		rkv := cache.NewRedisKV(redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("WORKLANE_REDIS_PASSWORD"),
		}))
		kv = rkv
		probe.Cache = rkv
	} else {
		kv = cache.NewMemoryKV(4096, 24*time.Hour)
	}

	mailer := mail.New(mail.Config{
		Host:     os.Getenv("WORKLANE_SMTP_HOST"),
		Port:     envInt("WORKLANE_SMTP_PORT", 587),
		Username: os.Getenv("WORKLANE_SMTP_USERNAME"),
		Password: os.Getenv("WORKLANE_SMTP_PASSWORD"),
		From:     envDefault("WORKLANE_SMTP_FROM", "no-reply@worklane.local"),
		BaseURL:  envDefault("WORKLANE_BASE_URL", "http://localhost:3000"),
	})

	gw := gateway.New(store, sessions, cache.NewCoordinator(kv), mailer)
	api := httpapi.New(gw, probe, version)

	srv := &http.Server{
		Addr:              envDefault("WORKLANE_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting worklane-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("%s must be an integer, got %q", key, v)
	}
	return n
}
