// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Article
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the "thin repository"
// approach: no business logic (ownership checks live in the service layer),
// only CRUD persistence and query composition.
//
// Error semantics:
//   - When an article is not found, functions return gorm.ErrRecordNotFound
//     (also exported as ErrNotFound).
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-article-webhooks/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateArticle inserts a as a new row. The caller sets the timestamps;
// the store assigns the ID, which is written back into a.
func CreateArticle(ctx context.Context, db *gorm.DB, a *domain.Article) error {
	return db.WithContext(ctx).Create(a).Error
}

// GetArticle fetches a single article by id, or ErrNotFound.
func GetArticle(ctx context.Context, db *gorm.DB, id uint64) (*domain.Article, error) {
	var a domain.Article
	if err := db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ListArticlesByUser returns all articles owned by userID, oldest first.
// It returns an empty slice when the user has none.
func ListArticlesByUser(ctx context.Context, db *gorm.DB, userID int64) ([]domain.Article, error) {
	out := []domain.Article{}
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// UpdateArticleContent overwrites the title, content and updated-at of the
// article with the given id. The owner column is never written here. It
// returns ErrNotFound when no row matched.
func UpdateArticleContent(ctx context.Context, db *gorm.DB, id uint64, title, content string, updatedAt time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Article{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"title":      title,
			"content":    content,
			"updated_at": updatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteArticle soft-deletes the article with the given id. It returns
// ErrNotFound when no live row matched.
func DeleteArticle(ctx context.Context, db *gorm.DB, id uint64) error {
	res := db.WithContext(ctx).Delete(&domain.Article{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
