package repo

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-article-webhooks/internal/domain"
)

func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestArticlesStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, _, err := ArticlesStats(context.Background(), db, 1); err == nil {
		t.Fatalf("expected error due to missing articles table")
	}
}

func TestArticlesStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.Article{})
	count, maxAt, err := ArticlesStats(context.Background(), db, 1)
	if err != nil {
		t.Fatalf("ArticlesStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestArticlesStats_Success_FilterAndMax(t *testing.T) {
	db := newTestDB(t, &domain.Article{})

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max for user 1
	t3 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)   // other user, later

	for _, a := range []domain.Article{
		{Title: "a", Content: "x", UserID: 1, CreatedAt: t1, UpdatedAt: t1},
		{Title: "b", Content: "x", UserID: 1, CreatedAt: t1, UpdatedAt: t2},
		{Title: "c", Content: "x", UserID: 2, CreatedAt: t3, UpdatedAt: t3},
	} {
		a := a
		if err := db.Create(&a).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	count, maxAt, err := ArticlesStats(context.Background(), db, 1)
	if err != nil {
		t.Fatalf("ArticlesStats: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d; want 2", count)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("maxUpdatedAt = %v; want %v", maxAt, t2)
	}
}

func TestArticlesStats_IgnoresSoftDeleted(t *testing.T) {
	db := newTestDB(t, &domain.Article{})
	ctx := context.Background()

	older := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)
	keep := &domain.Article{Title: "keep", Content: "x", UserID: 5, CreatedAt: older, UpdatedAt: older}
	drop := &domain.Article{Title: "drop", Content: "x", UserID: 5, CreatedAt: newer, UpdatedAt: newer}
	for _, a := range []*domain.Article{keep, drop} {
		if err := CreateArticle(ctx, db, a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := DeleteArticle(ctx, db, drop.ID); err != nil {
		t.Fatalf("DeleteArticle: %v", err)
	}

	count, maxAt, err := ArticlesStats(ctx, db, 5)
	if err != nil {
		t.Fatalf("ArticlesStats: %v", err)
	}
	if count != 1 || maxAt == nil || !maxAt.Equal(older) {
		t.Fatalf("got (%d, %v); want (1, %v)", count, maxAt, older)
	}

	if err := DeleteArticle(ctx, db, keep.ID); err != nil {
		t.Fatalf("DeleteArticle: %v", err)
	}
	if count, maxAt, err = ArticlesStats(ctx, db, 5); err != nil || count != 0 || maxAt != nil {
		t.Fatalf("after deleting all: (%d, %v, %v)", count, maxAt, err)
	}
}
