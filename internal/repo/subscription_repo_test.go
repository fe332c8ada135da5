package repo

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/tbourn/go-article-webhooks/internal/domain"
)

func TestFindSubscriptionByUser_AbsentIsNotAnError(t *testing.T) {
	db := newTestDB(t, &domain.WebhookSubscription{})

	sub, found, err := FindSubscriptionByUser(context.Background(), db, 7)
	if err != nil || found {
		t.Fatalf("expected (found=false, err=nil), got found=%v err=%v", found, err)
	}
	if sub.ID != 0 {
		t.Fatalf("expected zero value, got %+v", sub)
	}
}

func TestFindSubscriptionByUser_Error_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	if _, found, err := FindSubscriptionByUser(context.Background(), db, 7); err == nil || found {
		t.Fatalf("expected error for missing table, got found=%v err=%v", found, err)
	}
}

func TestUpsertSubscription_CreateThenOverwrite(t *testing.T) {
	db := newTestDB(t, &domain.WebhookSubscription{})
	ctx := context.Background()

	first, err := UpsertSubscription(ctx, db, 7, "http://sub.example/hook")
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.ID == 0 || first.UserID != 7 || first.WebhookURL != "http://sub.example/hook" {
		t.Fatalf("unexpected first row: %+v", first)
	}

	second, err := UpsertSubscription(ctx, db, 7, "http://other.example/hook")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert must update in place: first id=%d second id=%d", first.ID, second.ID)
	}
	if second.WebhookURL != "http://other.example/hook" {
		t.Fatalf("url not overwritten: %+v", second)
	}

	var n int64
	db.Model(&domain.WebhookSubscription{}).Where("user_id = ?", 7).Count(&n)
	if n != 1 {
		t.Fatalf("expected exactly one row for user 7, got %d", n)
	}

	got, found, err := FindSubscriptionByUser(ctx, db, 7)
	if err != nil || !found || got.WebhookURL != "http://other.example/hook" {
		t.Fatalf("lookup after upsert: found=%v err=%v got=%+v", found, err, got)
	}
}

func TestUpsertSubscription_ConcurrentSameUser_SingleRow(t *testing.T) {
	db := newTestDB(t, &domain.WebhookSubscription{})
	// SQLite serializes writers; waiting on the lock beats failing with SQLITE_BUSY.
	db.Exec("PRAGMA busy_timeout=5000;")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := UpsertSubscription(context.Background(), db, 5, fmt.Sprintf("http://h/%d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent upsert: %v", err)
	}

	var n int64
	db.Model(&domain.WebhookSubscription{}).Where("user_id = ?", 5).Count(&n)
	if n != 1 {
		t.Fatalf("expected exactly one row after concurrent upserts, got %d", n)
	}
}
