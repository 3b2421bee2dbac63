package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mafaconnect/backend/internal/cache"
	"mafaconnect/backend/internal/config"
	"mafaconnect/backend/internal/httpapi"
	"mafaconnect/backend/internal/lock"
	"mafaconnect/backend/internal/reorder"
	"mafaconnect/backend/internal/service"
	"mafaconnect/backend/internal/store"
	"mafaconnect/backend/internal/store/memory"
	pgstore "mafaconnect/backend/internal/store/postgres"
	"mafaconnect/backend/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Str("repository", "postgres").Msg("storage ready")
	} else {
		if cfg.IsProduction() {
			log.Fatal().Msg("DATABASE_URL is required in production")
		}
		repo = memory.NewSeeded()
		log.Info().Str("repository", "in-memory").Msg("storage ready")
	}

	deps := service.Dependencies{}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-process cache, locks and jobs")
			_ = rdb.Close()
			rdb = nil
		} else {
			closers = append(closers, rdb.Close)
			log.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
		}
	}

	if rdb != nil {
		deps.Cache = cache.NewRedisCache(rdb)
		deps.Locker = lock.NewRedisLocker(rdb)
		deps.Jobs = worker.NewDispatcher(rdb)
	} else {
		deps.Cache = cache.Noop{}
		deps.Locker = lock.NewLocalLocker()
		deps.Jobs = worker.NewDispatcher(nil)
	}
	deps.Reorder = reorder.NewEngine(deps.Cache, cfg.ReorderCacheTTL())

	svc := service.New(repo, deps)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	deps.Jobs.Start(workerCtx, cfg.WorkerPoolSize)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("mafaconnect backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	stopWorkers()
	deps.Jobs.Wait()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

// setupLogger uses a console writer in development and JSON otherwise.
func setupLogger(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if err := validateSecretStrength(cfg.AuthSecret); err != nil {
		return fmt.Errorf("AUTH_SECRET is too weak: %w", err)
	}
	if cfg.IsProduction() && strings.TrimSpace(cfg.AllowedOrigin) == "*" {
		return fmt.Errorf("ALLOWED_ORIGIN must name an origin in production")
	}
	return nil
}

// validateSecretStrength rejects secrets built from a single repeated
// character or containing a well-known placeholder.
func validateSecretStrength(secret string) error {
	lowered := strings.ToLower(secret)
	for _, placeholder := range []string{"changeme", "change-me", "secret", "password", "example"} {
		if strings.Contains(lowered, placeholder) {
			return fmt.Errorf("placeholder value %q not allowed", placeholder)
		}
	}

	allSame := true
	for i := 1; i < len(secret); i++ {
		if secret[i] != secret[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("single repeated character not allowed")
	}
	return nil
}
