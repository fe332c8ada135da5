// Command server runs the articles API and its webhook dispatcher.
//
// @title       Article Webhooks API
// @version     1.0
// @description Articles CRUD with per-user webhook notifications.
// @BasePath    /api
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-article-webhooks/docs"
	"github.com/tbourn/go-article-webhooks/internal/config"
	"github.com/tbourn/go-article-webhooks/internal/domain"
	httpapi "github.com/tbourn/go-article-webhooks/internal/http"
	"github.com/tbourn/go-article-webhooks/internal/observability"
	"github.com/tbourn/go-article-webhooks/internal/repo"
	"github.com/tbourn/go-article-webhooks/internal/sysutil"
	"github.com/tbourn/go-article-webhooks/internal/webhook"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(cfg.OTEL.ServiceName, cfg.LogLevel, cfg.LogPretty, os.Stderr)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		if err := observability.ShutdownWithin(shutdownOTel, cfg.ShutdownTimeout); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database init failed")
	}

	dispatcher := webhook.New(func(ctx context.Context, userID int64) (domain.WebhookSubscription, bool, error) {
		return repo.FindSubscriptionByUser(ctx, db, userID)
	}, webhook.Options{
		Timeout:     cfg.Webhook.Timeout,
		MaxInFlight: cfg.Webhook.MaxInFlight,
		UserAgent:   cfg.Webhook.UserAgent,
	})

	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.BasePath = cfg.APIBasePath

	r := gin.New()
	httpapi.RegisterRoutes(r, db, dispatcher, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	// Stop accepting requests first so no new dispatches start, then drain
	// in-flight deliveries within the same budget.
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := dispatcher.Close(shCtx); err != nil {
		log.Warn().Err(err).Msg("webhook deliveries abandoned at shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if cfg.OTEL.Enabled {
		if err := repo.Instrument(db); err != nil {
			return nil, err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
