// Package services – ArticleService
//
// This file implements ArticleService, which owns the lifecycle of articles
// and announces every mutation to the owner's webhook. It normalizes and
// validates input, enforces ownership on update and delete, coordinates the
// repository calls, and hands the resulting article to a Notifier.
//
// Notification is fire-and-forget: the Notifier must return immediately and
// its outcome never changes the result of the mutation. Creation optionally
// honours an idempotency key so client retries neither duplicate the article
// nor re-send the created event.
//
// Observability: public methods are OpenTelemetry-instrumented with the
// article and user identifiers as span attributes.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-article-webhooks/internal/domain"
	"github.com/tbourn/go-article-webhooks/internal/repo"
)

// ArticleRepo defines the repository contract required by ArticleService.
type ArticleRepo interface {
	// CreateArticle inserts a; the store assigns a.ID.
	CreateArticle(ctx context.Context, db *gorm.DB, a *domain.Article) error

	// GetArticle fetches a live article by id.
	GetArticle(ctx context.Context, db *gorm.DB, id uint64) (*domain.Article, error)

	// ListArticlesByUser returns the user's articles, oldest first.
	ListArticlesByUser(ctx context.Context, db *gorm.DB, userID int64) ([]domain.Article, error)

	// UpdateArticleContent overwrites title, content and updated-at.
	UpdateArticleContent(ctx context.Context, db *gorm.DB, id uint64, title, content string, updatedAt time.Time) error

	// DeleteArticle removes the article.
	DeleteArticle(ctx context.Context, db *gorm.DB, id uint64) error

	// ArticlesStats returns count and latest update for the user's articles.
	ArticlesStats(ctx context.Context, db *gorm.DB, userID int64) (int64, *time.Time, error)

	// GetIdempotency returns a live idempotency record for (userID, key).
	GetIdempotency(ctx context.Context, db *gorm.DB, userID int64, key string, now time.Time) (*domain.Idempotency, error)

	// CreateIdempotency stores a record, returning repo.ErrDuplicate on conflict.
	CreateIdempotency(ctx context.Context, db *gorm.DB, userID int64, key string, articleID uint64, status int, ttl time.Duration) (*domain.Idempotency, error)
}

// Notifier receives article mutations. Dispatch must not block on delivery
// and cannot fail; the webhook dispatcher is the production implementation.
type Notifier interface {
	Dispatch(ctx context.Context, userID int64, eventType string, a domain.Article)
}

// ArticleInput carries the client-supplied fields of a create or update.
type ArticleInput struct {
	Title   string
	Content string
	UserID  int64

	// IdempotencyKey is honoured by Create only. Empty disables replay.
	IdempotencyKey string
}

// ArticleService provides article CRUD with webhook notification.
type ArticleService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the article repository used by this service.
	Repo ArticleRepo
	// Notifier is told about every successful mutation. Nil disables it.
	Notifier Notifier

	// TitleMaxLen caps titles by rune length (0 = unlimited).
	TitleMaxLen int
	// ContentMaxLen caps content by rune length (0 = unlimited).
	ContentMaxLen int
	// IdempotencyTTL is how long a create can be replayed by key.
	IdempotencyTTL time.Duration

	// Now is the clock; nil means time.Now in UTC.
	Now func() time.Time
}

// NewArticleService constructs an ArticleService with default limits.
func NewArticleService(db *gorm.DB, r ArticleRepo, n Notifier) *ArticleService {
	return &ArticleService{
		DB:             db,
		Repo:           r,
		Notifier:       n,
		TitleMaxLen:    255,
		ContentMaxLen:  100_000,
		IdempotencyTTL: 24 * time.Hour,
	}
}

const tracerName = "services/ArticleService"

// Create validates in, persists a new article owned by in.UserID and
// dispatches article-created with the stored article.
//
// When in.IdempotencyKey matches a live record for the same user, the
// previously created article is returned with replayed=true and nothing is
// written or dispatched.
func (s *ArticleService) Create(ctx context.Context, in ArticleInput) (a *domain.Article, replayed bool, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Create",
		trace.WithAttributes(attribute.Int64("user.id", in.UserID)),
	)
	defer span.End()

	title, content, err := s.normalize(in)
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	art := &domain.Article{
		Title:     title,
		Content:   content,
		UserID:    in.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		if err := s.Repo.CreateArticle(ctx, s.DB, art); err != nil {
			return nil, false, err
		}
	} else {
		prev, err := s.createOnce(ctx, art, key, now)
		if err != nil {
			return nil, false, err
		}
		if prev != nil {
			span.SetAttributes(attribute.Bool("idempotency.replay", true))
			return prev, true, nil
		}
	}

	span.SetAttributes(attribute.Int64("article.id", int64(art.ID)))
	zerolog.Ctx(ctx).Info().
		Uint64("article_id", art.ID).
		Int64("user_id", art.UserID).
		Msg("article created")

	s.notify(ctx, domain.EventArticleCreated, *art)
	return art, false, nil
}

// createOnce inserts art and its idempotency record in one transaction. It
// returns the earlier article instead when key was already used by the user.
func (s *ArticleService) createOnce(ctx context.Context, art *domain.Article, key string, now time.Time) (*domain.Article, error) {
	var prev *domain.Article
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.Repo.GetIdempotency(ctx, tx, art.UserID, key, now)
		switch {
		case err == nil:
			prev, err = s.Repo.GetArticle(ctx, tx, rec.ArticleID)
			return err
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		if err := s.Repo.CreateArticle(ctx, tx, art); err != nil {
			return err
		}
		_, err = s.Repo.CreateIdempotency(ctx, tx, art.UserID, key, art.ID, http.StatusCreated, s.IdempotencyTTL)
		return err
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent request with the same key committed first.
		rec, gerr := s.Repo.GetIdempotency(ctx, s.DB, art.UserID, key, now)
		if gerr != nil {
			return nil, gerr
		}
		return s.Repo.GetArticle(ctx, s.DB, rec.ArticleID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		// The replayed article has since been deleted.
		return nil, fmt.Errorf("%w: replayed article is gone", ErrArticleNotFound)
	}
	return prev, err
}

// Update overwrites title and content of article id on behalf of in.UserID,
// refreshes its updated-at and dispatches article-updated. Existence and
// ownership are checked before the input is validated.
func (s *ArticleService) Update(ctx context.Context, id uint64, in ArticleInput) (*domain.Article, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Update",
		trace.WithAttributes(
			attribute.Int64("article.id", int64(id)),
			attribute.Int64("user.id", in.UserID),
		),
	)
	defer span.End()

	art, err := s.owned(ctx, id, in.UserID)
	if err != nil {
		return nil, err
	}
	title, content, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.Repo.UpdateArticleContent(ctx, s.DB, id, title, content, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: id=%d", ErrArticleNotFound, id)
		}
		return nil, err
	}
	art.Title, art.Content, art.UpdatedAt = title, content, now

	zerolog.Ctx(ctx).Info().
		Uint64("article_id", id).
		Int64("user_id", in.UserID).
		Msg("article updated")

	s.notify(ctx, domain.EventArticleUpdated, *art)
	return art, nil
}

// Delete removes article id on behalf of userID. article-deleted is
// dispatched with the pre-deletion state before the row is removed.
func (s *ArticleService) Delete(ctx context.Context, id uint64, userID int64) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.Int64("article.id", int64(id)),
			attribute.Int64("user.id", userID),
		),
	)
	defer span.End()

	art, err := s.owned(ctx, id, userID)
	if err != nil {
		return err
	}

	s.notify(ctx, domain.EventArticleDeleted, *art)

	if err := s.Repo.DeleteArticle(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: id=%d", ErrArticleNotFound, id)
		}
		return err
	}
	zerolog.Ctx(ctx).Info().
		Uint64("article_id", id).
		Int64("user_id", userID).
		Msg("article deleted")
	return nil
}

// Get returns a single article by id.
func (s *ArticleService) Get(ctx context.Context, id uint64) (*domain.Article, error) {
	a, err := s.Repo.GetArticle(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: id=%d", ErrArticleNotFound, id)
	}
	return a, err
}

// ListByUser returns every article owned by userID (possibly empty).
func (s *ArticleService) ListByUser(ctx context.Context, userID int64) ([]domain.Article, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ListByUser",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()
	return s.Repo.ListArticlesByUser(ctx, s.DB, userID)
}

// Stats returns the article count and latest update time for userID. The
// HTTP layer derives a weak ETag from it.
func (s *ArticleService) Stats(ctx context.Context, userID int64) (int64, *time.Time, error) {
	return s.Repo.ArticlesStats(ctx, s.DB, userID)
}

// owned loads article id and checks that userID owns it.
func (s *ArticleService) owned(ctx context.Context, id uint64, userID int64) (*domain.Article, error) {
	art, err := s.Repo.GetArticle(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: id=%d", ErrArticleNotFound, id)
		}
		return nil, err
	}
	if art.UserID != userID {
		return nil, fmt.Errorf("%w: article %d, user %d", ErrNotOwner, id, userID)
	}
	return art, nil
}

func (s *ArticleService) notify(ctx context.Context, eventType string, a domain.Article) {
	if s.Notifier == nil {
		return
	}
	s.Notifier.Dispatch(ctx, a.UserID, eventType, a)
}

// normalize trims and NFC-normalizes title and content and applies the
// configured limits.
func (s *ArticleService) normalize(in ArticleInput) (title, content string, err error) {
	if in.UserID <= 0 {
		return "", "", fmt.Errorf("%w: userId must be positive", ErrInvalidArticle)
	}
	title = norm.NFC.String(strings.TrimSpace(in.Title))
	content = norm.NFC.String(strings.TrimSpace(in.Content))
	switch {
	case title == "":
		return "", "", fmt.Errorf("%w: title is required", ErrInvalidArticle)
	case content == "":
		return "", "", fmt.Errorf("%w: content is required", ErrInvalidArticle)
	case s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen:
		return "", "", fmt.Errorf("%w: title exceeds %d characters", ErrInvalidArticle, s.TitleMaxLen)
	case s.ContentMaxLen > 0 && utf8.RuneCountInString(content) > s.ContentMaxLen:
		return "", "", fmt.Errorf("%w: content exceeds %d characters", ErrInvalidArticle, s.ContentMaxLen)
	}
	return title, content, nil
}

func (s *ArticleService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
