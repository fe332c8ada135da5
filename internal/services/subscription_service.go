// Package services – SubscriptionService
//
// SubscriptionService registers the single webhook URL each user may have.
// Registration is an upsert: the first call creates the row, later calls
// overwrite the URL in place. Concurrent registrations for the same user are
// serialized by the store (last write wins), never producing two rows.
package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-article-webhooks/internal/domain"
	"github.com/tbourn/go-article-webhooks/internal/sysutil"
)

// SubscriptionRepo defines the repository contract required by
// SubscriptionService.
type SubscriptionRepo interface {
	// FindSubscriptionByUser returns the user's subscription; found is false
	// when none exists.
	FindSubscriptionByUser(ctx context.Context, db *gorm.DB, userID int64) (domain.WebhookSubscription, bool, error)

	// UpsertSubscription creates or overwrites the user's webhook URL.
	UpsertSubscription(ctx context.Context, db *gorm.DB, userID int64, url string) (*domain.WebhookSubscription, error)
}

// SubscribeInput carries a webhook registration request.
type SubscribeInput struct {
	UserID     int64
	WebhookURL string
}

// SubscriptionService manages per-user webhook registrations.
type SubscriptionService struct {
	DB   *gorm.DB
	Repo SubscriptionRepo

	// MaxURLLen caps the accepted URL length in bytes (0 = unlimited).
	MaxURLLen int
}

// NewSubscriptionService constructs a SubscriptionService with defaults.
func NewSubscriptionService(db *gorm.DB, r SubscriptionRepo) *SubscriptionService {
	return &SubscriptionService{DB: db, Repo: r, MaxURLLen: 2048}
}

// SubscribeOrUpdate registers in.WebhookURL for in.UserID, replacing any
// previous URL, and returns the stored subscription.
func (s *SubscriptionService) SubscribeOrUpdate(ctx context.Context, in SubscribeInput) (*domain.WebhookSubscription, error) {
	raw := strings.TrimSpace(in.WebhookURL)
	if in.UserID <= 0 {
		return nil, fmt.Errorf("%w: userId must be positive", ErrInvalidSubscription)
	}
	if err := s.validateURL(raw); err != nil {
		return nil, err
	}

	// The pre-read only decides the log line; the upsert below is what
	// guarantees a single row.
	_, existed, err := s.Repo.FindSubscriptionByUser(ctx, s.DB, in.UserID)
	if err != nil {
		return nil, err
	}

	sub, err := s.Repo.UpsertSubscription(ctx, s.DB, in.UserID, raw)
	if err != nil {
		return nil, err
	}

	msg := "webhook subscription created"
	if existed {
		msg = "webhook subscription updated"
	}
	zerolog.Ctx(ctx).Info().Int64("user_id", in.UserID).Str("url", sysutil.RedactURL(raw)).Msg(msg)
	return sub, nil
}

// GetByUser returns the subscription of userID or ErrSubscriptionNotFound.
func (s *SubscriptionService) GetByUser(ctx context.Context, userID int64) (*domain.WebhookSubscription, error) {
	sub, found, err := s.Repo.FindSubscriptionByUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: user %d", ErrSubscriptionNotFound, userID)
	}
	return &sub, nil
}

// validateURL accepts absolute http(s) URLs with a host.
func (s *SubscriptionService) validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: webhookUrl is required", ErrInvalidSubscription)
	}
	if s.MaxURLLen > 0 && len(raw) > s.MaxURLLen {
		return fmt.Errorf("%w: webhookUrl exceeds %d bytes", ErrInvalidSubscription, s.MaxURLLen)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: webhookUrl is malformed", ErrInvalidSubscription)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: webhookUrl must be an absolute http(s) URL", ErrInvalidSubscription)
	}
	return nil
}
