// Command hookrecv is a local webhook sink for trying out the articles API.
// Point a subscription at http://localhost:3000/webhook and inspect
// deliveries at /webhooks.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-article-webhooks/internal/receiver"
	"github.com/tbourn/go-article-webhooks/internal/sysutil"
)

func main() {
	_ = godotenv.Load()

	sysutil.SetupLogger("hookrecv",
		sysutil.FirstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		sysutil.IsTruthy(os.Getenv("LOG_PRETTY")),
		os.Stderr)
	gin.SetMode(gin.ReleaseMode)

	capacity := receiver.DefaultCapacity
	if v := os.Getenv("RECEIVER_CAPACITY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Fatal().Str("value", v).Msg("RECEIVER_CAPACITY must be a positive integer")
		}
		capacity = n
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", sysutil.FirstNonEmpty(os.Getenv("RECEIVER_PORT"), "3000")),
		Handler:           receiver.NewServer(receiver.NewStore(capacity)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", srv.Addr).Int("capacity", capacity).Msg("webhook receiver listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("receiver failed")
			stop()
		}
	}()

	<-ctx.Done()
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	log.Info().Msg("receiver stopped")
}
