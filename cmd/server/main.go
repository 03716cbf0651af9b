package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"oidcd/internal/keys"
	"oidcd/internal/oidc/correlation"
	"oidcd/internal/oidc/handler"
	"oidcd/internal/oidc/service"
	"oidcd/internal/platform/config"
	"oidcd/internal/platform/httpserver"
	"oidcd/internal/platform/logger"
	"oidcd/internal/platform/metrics"
	"oidcd/internal/platform/middleware"
	platformredis "oidcd/internal/platform/redis"
	"oidcd/internal/store"
	"oidcd/internal/store/memory"
	"oidcd/internal/store/postgres"
)

// main wires the dependencies and keeps the server lifecycle small. Protocol
// logic lives under internal/oidc.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx := context.Background()

	// Key material and salt are startup-fatal: without them no token can be
	// signed and no password digested.
	keyManager, err := keys.LoadOrCreate(cfg.ConfigDir)
	if err != nil {
		return err
	}
	salt, err := keys.LoadOrCreateSalt(cfg.ConfigDir)
	if err != nil {
		return err
	}

	var credentials store.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		credentials = pg
		log.Info("using postgres credential store")
	} else {
		credentials = devStore(salt)
		log.Warn("no database configured, using in-memory store with development credentials")
	}

	var tracker correlation.Tracker
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		tracker = correlation.NewRedis(redisClient.Client)
		log.Info("using redis correlation tracker")
	} else {
		tracker = correlation.NewInMemory()
	}

	m := metrics.New()
	svc := service.New(credentials, tracker, keyManager.PrivateKey(), service.Config{
		Issuer:        cfg.Issuer,
		Salt:          salt,
		TokenValidity: cfg.TokenValidity,
		TokenDuration: cfg.TokenDuration,
	})

	cookies, err := handler.NewCookieCodec()
	if err != nil {
		return err
	}
	h := handler.New(svc, cookies, log, m, keyManager.PublicKeyPEM())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(30 * time.Second))
	h.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, r)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// devStore seeds a local client and user so the provider is usable without a
// database. Never reached when OIDCD_DATABASE_URL is set.
func devStore(salt string) *memory.Store {
	st := memory.New()
	st.SeedClient(store.Client{
		ID:   "demo",
		Name: "demo",
		RedirectURLs: []string{
			"http://localhost/cb",
			"http://localhost:3000/cb",
		},
	})
	st.SeedUser(
		store.User{ID: "1", Email: "demo@example.com", Groups: []string{"users"}},
		service.DigestPassword("password", salt),
	)
	return st
}
