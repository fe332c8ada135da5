package domain

import (
	"testing"
	"time"
)

func TestIdempotency_Migration_Indexes_AndInsert(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&Idempotency{}) {
		t.Fatalf("expected table %q to exist", Idempotency{}.TableName())
	}
	if !m.HasIndex(&Idempotency{}, "ux_user_key") {
		t.Fatalf("expected composite index ux_user_key to exist")
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID:        "id-1",
		UserID:    7,
		Key:       "k1",
		ArticleID: 42,
		Status:    201,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.UserID != 7 || got.Key != "k1" || got.ArticleID != 42 || got.Status != 201 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.ExpiresAt.Before(now) {
		t.Fatalf("ExpiresAt should be after CreatedAt: %v vs %v", got.ExpiresAt, now)
	}

	// Same key for another user is fine.
	other := &Idempotency{ID: "id-2", UserID: 8, Key: "k1", ArticleID: 43, Status: 201, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("insert other user: %v", err)
	}

	// (user_id, key) must be unique.
	dup := &Idempotency{ID: "id-3", UserID: 7, Key: "k1", ArticleID: 44, Status: 201, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (user_id, key)")
	}
}
