// Package content implements the post and reply write pipelines and the
// feed read paths. It is a pure consumer of the storage command contract:
// every effect goes through commands.Store, so the same pipeline runs
// unchanged against either backend.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"aphorist/pkg/commands"
	"aphorist/pkg/keys"
	"aphorist/pkg/logger"
	"aphorist/pkg/models"
	"aphorist/pkg/utils"
)

// ErrInvalidInput marks caller mistakes (empty content, missing parent).
// Handlers map it to 400; everything else is a backend failure.
var ErrInvalidInput = errors.New("invalid input")

// ErrParentNotFound is returned when a reply references a post that does
// not exist.
var ErrParentNotFound = errors.New("parent post not found")

// DefaultFeedPageSize caps feed pages when the caller asks for 0 or less.
const DefaultFeedPageSize = 50

// Service runs the content pipelines against a Store.
type Service struct {
	store commands.Store
	now   func() time.Time
}

func New(store commands.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// CreatePost writes the post entity and its derived indexes: the feed
// sorted set, the author's post set and the feed counter.
func (s *Service) CreatePost(ctx context.Context, text, authorID string) (*models.Post, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: post content is empty", ErrInvalidInput)
	}
	if authorID == "" {
		return nil, fmt.Errorf("%w: authorId is required", ErrInvalidInput)
	}

	p := &models.Post{
		ID:        utils.GenID(),
		Content:   text,
		AuthorID:  authorID,
		CreatedAt: s.now().UnixMilli(),
	}

	key := "post:" + p.ID
	fields := map[string]string{
		"content":   p.Content,
		"authorId":  p.AuthorID,
		"createdAt": strconv.FormatInt(p.CreatedAt, 10),
	}
	for f, v := range fields {
		if err := s.store.HSet(ctx, key, f, v); err != nil {
			return nil, err
		}
	}
	if _, err := s.store.ZAdd(ctx, "feedItems", p.CreatedAt, p.ID); err != nil {
		return nil, err
	}
	if _, err := s.store.SAdd(ctx, "userPosts:"+keys.Escape(p.AuthorID), p.ID); err != nil {
		return nil, err
	}
	if _, err := s.store.HIncrBy(ctx, "feedStats", "itemCount", 1); err != nil {
		return nil, err
	}

	logger.Info("post_created", "id", p.ID, "author", p.AuthorID)
	return p, nil
}

// ReplyInput is the caller-supplied part of a reply. RootPostID defaults to
// ParentID for direct replies.
type ReplyInput struct {
	Text       string        `json:"text"`
	ParentID   string        `json:"parentId"`
	RootPostID string        `json:"rootPostId"`
	AuthorID   string        `json:"authorId"`
	Quote      *models.Quote `json:"quote,omitempty"`
}

// CreateReply writes the reply entity and every derived index: the reply
// feed, the author's reply set, the parent's reply counter and, when the
// reply quotes an excerpt, the per-parent-quote index plus its atomic
// counter.
func (s *Service) CreateReply(ctx context.Context, in ReplyInput) (*models.Reply, error) {
	if in.Text == "" {
		return nil, fmt.Errorf("%w: reply text is empty", ErrInvalidInput)
	}
	if in.ParentID == "" {
		return nil, fmt.Errorf("%w: parentId is required", ErrInvalidInput)
	}
	if in.AuthorID == "" {
		return nil, fmt.Errorf("%w: authorId is required", ErrInvalidInput)
	}
	if in.RootPostID == "" {
		in.RootPostID = in.ParentID
	}

	parent, err := s.store.HGetAll(ctx, "post:"+in.ParentID)
	if err != nil {
		return nil, err
	}
	if len(parent) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrParentNotFound, in.ParentID)
	}

	r := &models.Reply{
		ID:         utils.GenID(),
		Text:       in.Text,
		ParentID:   in.ParentID,
		RootPostID: in.RootPostID,
		AuthorID:   in.AuthorID,
		CreatedAt:  s.now().UnixMilli(),
		Quote:      in.Quote,
	}

	key := "reply:" + r.ID
	fields := map[string]string{
		"text":       r.Text,
		"parentId":   r.ParentID,
		"rootPostId": r.RootPostID,
		"authorId":   r.AuthorID,
		"createdAt":  strconv.FormatInt(r.CreatedAt, 10),
	}
	if r.Quote != nil {
		qraw, err := json.Marshal(r.Quote)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed quote: %v", ErrInvalidInput, err)
		}
		fields["quote"] = string(qraw)
	}
	for f, v := range fields {
		if err := s.store.HSet(ctx, key, f, v); err != nil {
			return nil, err
		}
	}

	if _, err := s.store.ZAdd(ctx, "replyFeedItems", r.CreatedAt, r.ID); err != nil {
		return nil, err
	}
	if _, err := s.store.SAdd(ctx, "userReplies:"+keys.Escape(r.AuthorID), r.ID); err != nil {
		return nil, err
	}
	if _, err := s.store.HIncrBy(ctx, "post:"+r.ParentID, "replyCount", 1); err != nil {
		return nil, err
	}

	if r.Quote != nil {
		qk := keys.QuoteKey(*r.Quote)
		indexKey := "repliesByParentQuote:" + r.ParentID + ":" + qk
		if _, err := s.store.ZAdd(ctx, indexKey, r.CreatedAt, r.ID); err != nil {
			return nil, err
		}
		if _, err := s.store.HIncrementQuoteCount(ctx, r.ParentID+":quoteCounts", qk, *r.Quote); err != nil {
			return nil, err
		}
	}

	logger.Info("reply_created", "id", r.ID, "parent", r.ParentID, "quoted", r.Quote != nil)
	return r, nil
}

// GetPost hydrates a post from its hash. Missing posts are (nil, false, nil).
func (s *Service) GetPost(ctx context.Context, id string) (*models.Post, bool, error) {
	h, err := s.store.HGetAll(ctx, "post:"+id)
	if err != nil {
		return nil, false, err
	}
	if len(h) == 0 {
		return nil, false, nil
	}
	createdAt, _ := strconv.ParseInt(h["createdAt"], 10, 64)
	replyCount, _ := strconv.ParseInt(h["replyCount"], 10, 64)
	return &models.Post{
		ID:         id,
		Content:    h["content"],
		AuthorID:   h["authorId"],
		CreatedAt:  createdAt,
		ReplyCount: replyCount,
	}, true, nil
}

// GetReply hydrates a reply from its hash.
func (s *Service) GetReply(ctx context.Context, id string) (*models.Reply, bool, error) {
	h, err := s.store.HGetAll(ctx, "reply:"+id)
	if err != nil {
		return nil, false, err
	}
	if len(h) == 0 {
		return nil, false, nil
	}
	createdAt, _ := strconv.ParseInt(h["createdAt"], 10, 64)
	r := &models.Reply{
		ID:         id,
		Text:       h["text"],
		ParentID:   h["parentId"],
		RootPostID: h["rootPostId"],
		AuthorID:   h["authorId"],
		CreatedAt:  createdAt,
	}
	if qraw, ok := h["quote"]; ok {
		var q models.Quote
		if err := json.Unmarshal([]byte(qraw), &q); err == nil {
			r.Quote = &q
		} else {
			logger.Warn("reply_quote_unreadable", "id", id, "error", err)
		}
	}
	return r, true, nil
}

// FeedPage is one page of the reverse-chronological feed plus the cursor
// for the next page. NextBefore is 0 when the feed is exhausted.
type FeedPage struct {
	Posts      []models.Post `json:"posts"`
	NextBefore int64         `json:"nextBefore,omitempty"`
}

// Feed returns posts created strictly before the cursor, newest first.
// Pass before <= 0 for the first page.
func (s *Service) Feed(ctx context.Context, before, limit int64) (*FeedPage, error) {
	if limit <= 0 {
		limit = DefaultFeedPageSize
	}
	max := before - 1
	if before <= 0 {
		max = s.now().UnixMilli()
	}
	members, err := s.store.ZRevRangeByScore(ctx, "feedItems", max, 0, limit)
	if err != nil {
		return nil, err
	}

	page := &FeedPage{Posts: make([]models.Post, 0, len(members))}
	for _, m := range members {
		p, ok, err := s.GetPost(ctx, m.Value)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Index and entity can drift between a delete and a sweep.
			logger.Warn("feed_member_missing_post", "id", m.Value)
			continue
		}
		page.Posts = append(page.Posts, *p)
	}
	if int64(len(members)) == limit && len(members) > 0 {
		page.NextBefore = members[len(members)-1].Score
	}
	return page, nil
}

// QuoteThread is one quoted excerpt of a post together with its replies in
// chronological order.
type QuoteThread struct {
	Quote   models.Quote   `json:"quote"`
	Count   int64          `json:"count"`
	Replies []models.Reply `json:"replies"`
}

// QuoteThreads lists every quoted excerpt under a post with the replies
// that quote it, driven by the quote counter hash and the per-quote reply
// index.
func (s *Service) QuoteThreads(ctx context.Context, postID string) ([]QuoteThread, error) {
	fields, err := s.store.HGetAll(ctx, postID+":quoteCounts")
	if err != nil {
		return nil, err
	}

	threads := make([]QuoteThread, 0, len(fields))
	for qk, raw := range fields {
		var qc commands.QuoteCount
		if err := json.Unmarshal([]byte(raw), &qc); err != nil {
			logger.Warn("quote_counter_unreadable", "post", postID, "field", qk, "error", err)
			continue
		}
		ids, err := s.store.ZRange(ctx, "repliesByParentQuote:"+postID+":"+qk, 0, -1)
		if err != nil {
			return nil, err
		}
		t := QuoteThread{Quote: qc.Quote, Count: qc.Count, Replies: make([]models.Reply, 0, len(ids))}
		for _, id := range ids {
			r, ok, err := s.GetReply(ctx, id)
			if err != nil {
				return nil, err
			}
			if ok {
				t.Replies = append(t.Replies, *r)
			}
		}
		threads = append(threads, t)
	}
	return threads, nil
}

// UserPosts lists the ids of posts written by an author.
func (s *Service) UserPosts(ctx context.Context, authorID string) ([]string, error) {
	return s.store.SMembers(ctx, "userPosts:"+keys.Escape(authorID))
}

// UserReplies lists the ids of replies written by an author.
func (s *Service) UserReplies(ctx context.Context, authorID string) ([]string, error) {
	return s.store.SMembers(ctx, "userReplies:"+keys.Escape(authorID))
}
