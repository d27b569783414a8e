package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/api"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/broadcast"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/classifier"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/config"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/dedup"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/media"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/phone"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/registration"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/store"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/transport"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the message store
	var st store.DataStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		if err := pgStore.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		st = pgStore
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("using embedded SQLite store")
		st = sqliteStore
	}
	defer st.Close()

	// Dedup cache: Redis-backed when configured, process-local otherwise
	var deduper dedup.Deduper
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer client.Close()
		logger.Info().Msg("connected to Redis")
		deduper = dedup.NewRedisCache(client, 24*time.Hour, logger)
	} else {
		deduper = dedup.NewCache(cfg.DedupLimit)
	}

	// Media storage
	blobs, err := media.NewFSBlobStore(cfg.MediaDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("media directory setup failed")
	}
	ingestor := media.NewIngestor(blobs, logger)

	// Bridge sidecar connection (resolves our own session address)
	bridge, err := transport.NewBridge(ctx, cfg.BridgeURL, cfg.BridgeToken, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bridge connection failed")
	}
	defer bridge.Close()

	hub := broadcast.NewHub(logger)
	defer hub.Close()

	normalizer := phone.NewNormalizer(cfg.DefaultCountryCode, phone.DefaultPrefixLengths)

	engine := registration.NewEngine(st, bridge, hub, logger, registration.Options{
		CommandPrefix:    cfg.CommandPrefix,
		CredentialTTL:    cfg.CredentialTTL,
		CredentialLength: cfg.CredentialLength,
	})

	// Event classifier: consumes bridge events serially
	cls := classifier.New(bridge, deduper, ingestor, engine, st, hub, normalizer, logger)
	go cls.Run(ctx)

	// Create router
	router := api.NewRouter(logger, st, bridge, ingestor, hub, normalizer)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("session", bridge.OwnAddress()).
			Msg("starting messenger server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Stop consuming bridge events before closing the HTTP surface
	cancel()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
