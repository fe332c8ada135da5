// Package services defines the business logic for articles and webhook
// subscriptions. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// Service methods wrap these sentinels with fmt.Errorf("%w: ...") so the
// message names the offending id while errors.Is keeps working. Translation
// into HTTP status codes is performed at the handler layer.
package services

import "errors"

// Article-related errors.
var (
	// ErrArticleNotFound indicates that the requested article does not exist
	// (or was deleted).
	ErrArticleNotFound = errors.New("article not found")

	// ErrNotOwner is returned when the acting user does not own the article
	// being updated or deleted.
	ErrNotOwner = errors.New("user does not own this article")

	// ErrInvalidArticle is returned when title, content or owner fail
	// validation.
	ErrInvalidArticle = errors.New("invalid article")
)

// Subscription-related errors.
var (
	// ErrInvalidSubscription is returned when the user id or webhook URL
	// fails validation.
	ErrInvalidSubscription = errors.New("invalid subscription")

	// ErrSubscriptionNotFound indicates that the user has no webhook
	// registered.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
