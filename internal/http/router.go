// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"path"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-article-webhooks/docs" // registers swagger docs
	"github.com/tbourn/go-article-webhooks/internal/config"
	"github.com/tbourn/go-article-webhooks/internal/domain"
	"github.com/tbourn/go-article-webhooks/internal/http/handlers"
	"github.com/tbourn/go-article-webhooks/internal/http/middleware"
	"github.com/tbourn/go-article-webhooks/internal/repo"
	"github.com/tbourn/go-article-webhooks/internal/services"
)

// articleRepoShim adapts the repository free functions to the
// services.ArticleRepo interface expected by the ArticleService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type articleRepoShim struct{}

// CreateArticle proxies repo.CreateArticle.
func (articleRepoShim) CreateArticle(ctx context.Context, db *gorm.DB, a *domain.Article) error {
	return repo.CreateArticle(ctx, db, a)
}

// GetArticle proxies repo.GetArticle.
func (articleRepoShim) GetArticle(ctx context.Context, db *gorm.DB, id uint64) (*domain.Article, error) {
	return repo.GetArticle(ctx, db, id)
}

// ListArticlesByUser proxies repo.ListArticlesByUser.
func (articleRepoShim) ListArticlesByUser(ctx context.Context, db *gorm.DB, userID int64) ([]domain.Article, error) {
	return repo.ListArticlesByUser(ctx, db, userID)
}

// UpdateArticleContent proxies repo.UpdateArticleContent.
func (articleRepoShim) UpdateArticleContent(ctx context.Context, db *gorm.DB, id uint64, title, content string, updatedAt time.Time) error {
	return repo.UpdateArticleContent(ctx, db, id, title, content, updatedAt)
}

// DeleteArticle proxies repo.DeleteArticle.
func (articleRepoShim) DeleteArticle(ctx context.Context, db *gorm.DB, id uint64) error {
	return repo.DeleteArticle(ctx, db, id)
}

// ArticlesStats proxies repo.ArticlesStats (ETag support).
func (articleRepoShim) ArticlesStats(ctx context.Context, db *gorm.DB, userID int64) (int64, *time.Time, error) {
	return repo.ArticlesStats(ctx, db, userID)
}

// GetIdempotency proxies repo.GetIdempotency.
func (articleRepoShim) GetIdempotency(ctx context.Context, db *gorm.DB, userID int64, key string, now time.Time) (*domain.Idempotency, error) {
	return repo.GetIdempotency(ctx, db, userID, key, now)
}

// CreateIdempotency proxies repo.CreateIdempotency.
func (articleRepoShim) CreateIdempotency(ctx context.Context, db *gorm.DB, userID int64, key string, articleID uint64, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return repo.CreateIdempotency(ctx, db, userID, key, articleID, status, ttl)
}

// subscriptionRepoShim adapts the subscription repository functions to
// services.SubscriptionRepo.
type subscriptionRepoShim struct{}

// FindSubscriptionByUser proxies repo.FindSubscriptionByUser.
func (subscriptionRepoShim) FindSubscriptionByUser(ctx context.Context, db *gorm.DB, userID int64) (domain.WebhookSubscription, bool, error) {
	return repo.FindSubscriptionByUser(ctx, db, userID)
}

// UpsertSubscription proxies repo.UpsertSubscription.
func (subscriptionRepoShim) UpsertSubscription(ctx context.Context, db *gorm.DB, userID int64, url string) (*domain.WebhookSubscription, error) {
	return repo.UpsertSubscription(ctx, db, userID, url)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. Article mutations are announced through notifier (the webhook
// dispatcher in production; nil disables notification).
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger or RedactingLogger (LOG_REDACT): structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip response compression
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, notifier services.Notifier, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging, with or without redaction
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
		}))
	} else {
		r.Use(middleware.Logger())
	}

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression for clients that ask for it
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Routes: []string{path.Join("/", cfg.APIBasePath, "articles")},
		},
		func(ctx context.Context, userID int64, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, userID, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
	))

	// 9) Token-bucket rate limiter per acting user or IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByActingUserOrIP()).Exempt("/health", "/metrics")
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	corsBase := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		corsBase.AllowAllOrigins = true // AllowCredentials must remain false
		r.Use(cors.New(corsBase))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		corsBase.AllowOrigins = cfg.CORS.AllowedOrigins
		r.Use(cors.New(corsBase))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:           cfg.Security.EnableHSTS,
		HSTSMaxAge:           cfg.Security.HSTSMaxAge,
		EnablePolicy:         true,
		PolicyExemptPrefixes: []string{"/swagger/"},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/notifier
	articleSvc := services.NewArticleService(db, articleRepoShim{}, notifier)
	articleSvc.IdempotencyTTL = cfg.IdempotencyTTL
	subSvc := services.NewSubscriptionService(db, subscriptionRepoShim{})
	h := handlers.New(articleSvc, subSvc)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api"
	{
		// Articles
		api.POST("/articles", h.CreateArticle)
		api.PUT("/articles/:id", h.UpdateArticle)
		api.DELETE("/articles/:id", h.DeleteArticle)
		api.GET("/articles/user/:userId", h.ListUserArticles)
		api.GET("/articles/:id", h.GetArticle)

		// Webhooks
		api.POST("/webhooks/subscribe", h.Subscribe)
		api.GET("/webhooks/user/:userId", h.GetSubscription)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
