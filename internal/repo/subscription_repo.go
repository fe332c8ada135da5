// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for webhook
// subscriptions (one per user).
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-article-webhooks/internal/domain"
)

// FindSubscriptionByUser looks up the subscription for userID. Absence is not
// an error: found is false and err is nil.
func FindSubscriptionByUser(ctx context.Context, db *gorm.DB, userID int64) (sub domain.WebhookSubscription, found bool, err error) {
	err = db.WithContext(ctx).Where("user_id = ?", userID).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.WebhookSubscription{}, false, nil
	}
	if err != nil {
		return domain.WebhookSubscription{}, false, err
	}
	return sub, true, nil
}

// UpsertSubscription stores url as the webhook of userID. The insert and the
// conflict update on user_id happen in one statement, so concurrent calls for
// the same user serialize in the database (last write wins) and never create
// a second row. The stored row is read back and returned.
func UpsertSubscription(ctx context.Context, db *gorm.DB, userID int64, url string) (*domain.WebhookSubscription, error) {
	now := time.Now().UTC()
	var out domain.WebhookSubscription
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &domain.WebhookSubscription{
			UserID:     userID,
			WebhookURL: url,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"webhook_url", "updated_at"}),
		}).Create(row).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Take(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
