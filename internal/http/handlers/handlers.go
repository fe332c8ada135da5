// Package handlers exposes the REST endpoints of the article service.
//
// Handlers are transport-thin: they parse and validate path, query and body
// input, call application services, and translate results into HTTP
// responses (including conditional responses and idempotent replays).
package handlers

import (
	"context"
	"time"

	"github.com/tbourn/go-article-webhooks/internal/domain"
	"github.com/tbourn/go-article-webhooks/internal/services"
)

// ArticleService defines the article operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ArticleService interface {
	// Create stores a new article; replayed is true when an idempotency key
	// matched an earlier create.
	Create(ctx context.Context, in services.ArticleInput) (a *domain.Article, replayed bool, err error)
	// Update overwrites title and content of an article owned by in.UserID.
	Update(ctx context.Context, id uint64, in services.ArticleInput) (*domain.Article, error)
	// Delete removes an article owned by userID.
	Delete(ctx context.Context, id uint64, userID int64) error
	// Get returns an article by id.
	Get(ctx context.Context, id uint64) (*domain.Article, error)
	// ListByUser returns all articles of a user.
	ListByUser(ctx context.Context, userID int64) ([]domain.Article, error)
	// Stats returns count and latest update for ETag generation.
	Stats(ctx context.Context, userID int64) (int64, *time.Time, error)
}

// SubscriptionService defines webhook registration operations.
type SubscriptionService interface {
	// SubscribeOrUpdate creates or replaces the user's webhook URL.
	SubscribeOrUpdate(ctx context.Context, in services.SubscribeInput) (*domain.WebhookSubscription, error)
	// GetByUser returns the user's webhook subscription.
	GetByUser(ctx context.Context, userID int64) (*domain.WebhookSubscription, error)
}

// Handlers groups HTTP endpoints for articles and webhook subscriptions.
type Handlers struct {
	articles ArticleService
	subs     SubscriptionService
}

// New constructs a Handlers instance bound to the given services.
func New(articles ArticleService, subs SubscriptionService) *Handlers {
	return &Handlers{articles: articles, subs: subs}
}
