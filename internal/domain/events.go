package domain

// Event types carried in the eventType field of outbound webhook envelopes.
const (
	EventArticleCreated = "article-created"
	EventArticleUpdated = "article-updated"
	EventArticleDeleted = "article-deleted"
)
