package models

// Post is a top-level story entry shown in the feed.
type Post struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	AuthorID string `json:"authorId"`
	// Created timestamp (ms)
	CreatedAt int64 `json:"createdAt"`
	// ReplyCount mirrors the number of direct replies; maintained by the
	// reply pipeline, rebuilt from scratch by migration.
	ReplyCount int64 `json:"replyCount,omitempty"`
}

// FeedItem is the projection of a post stored in feed indexes.
type FeedItem struct {
	ID        string `json:"id"`
	AuthorID  string `json:"authorId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}
