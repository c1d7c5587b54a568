package models

// Quote identifies the excerpt of a parent a reply responds to. Text plus
// source id plus selection range is the identity used for quote counters;
// see keys.QuoteKey.
type Quote struct {
	Text           string         `json:"text"`
	SourceID       string         `json:"sourceId"`
	SelectionRange SelectionRange `json:"selectionRange"`
}

// SelectionRange is a character range within the quoted source.
type SelectionRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Reply is a threaded response to a post or another reply.
type Reply struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	ParentID   string `json:"parentId"`
	RootPostID string `json:"rootPostId"`
	AuthorID   string `json:"authorId"`
	// Created timestamp (ms)
	CreatedAt int64  `json:"createdAt"`
	Quote     *Quote `json:"quote,omitempty"`
}
