package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-article-webhooks/internal/domain"
)

// ArticlesStats feeds the weak ETag of GET /articles/user/:userId: how many
// live articles userID owns and the newest UpdatedAt among them, nil when
// there are none. Soft-deleted rows are excluded.
func ArticlesStats(ctx context.Context, db *gorm.DB, userID int64) (int64, *time.Time, error) {
	owned := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.Article{}).Where("user_id = ?", userID)
	}

	// ORDER BY + LIMIT rather than MAX(): SQLite returns MAX over a datetime
	// column as TEXT.
	var latest []time.Time
	if err := owned().Order("updated_at DESC").Limit(1).Pluck("updated_at", &latest).Error; err != nil {
		return 0, nil, err
	}
	if len(latest) == 0 {
		return 0, nil, nil
	}

	var n int64
	if err := owned().Count(&n).Error; err != nil {
		return 0, nil, err
	}
	return n, &latest[0], nil
}
