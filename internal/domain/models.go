// Package domain defines the persistence models for articles and webhook
// subscriptions. These types are mapped with GORM and double as the JSON
// resources returned by the HTTP API and carried inside webhook envelopes.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Article is a piece of content owned by a single user. The owner is fixed at
// creation time; only the title, content and UpdatedAt change afterwards.
//
// Fields:
//   - ID: store-assigned autoincrement primary key.
//   - UserID: owning user; indexed for list-by-user.
//   - Title / Content: user-supplied text.
//   - CreatedAt / UpdatedAt: set by the article workflow (equal at creation).
//   - DeletedAt: soft deletion marker, never serialized.
type Article struct {
	ID        uint64         `json:"id"        gorm:"primaryKey;autoIncrement"`
	Title     string         `json:"title"     gorm:"type:varchar(255);not null"`
	Content   string         `json:"content"   gorm:"type:text;not null"`
	UserID    int64          `json:"userId"    gorm:"not null;index:idx_user_articles"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"-"         gorm:"index"`
}

// TableName returns the database table name for Article.
func (Article) TableName() string { return "articles" }

// WebhookSubscription is the single callback URL registered by a user.
// The unique index on user_id guarantees at most one row per user; repeated
// subscribe requests overwrite WebhookURL in place.
type WebhookSubscription struct {
	ID         uint64    `json:"id"         gorm:"primaryKey;autoIncrement"`
	UserID     int64     `json:"userId"     gorm:"not null;uniqueIndex:ux_webhook_user"`
	WebhookURL string    `json:"webhookUrl" gorm:"type:varchar(2048);not null"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName returns the database table name for WebhookSubscription.
func (WebhookSubscription) TableName() string { return "webhook_subscriptions" }
