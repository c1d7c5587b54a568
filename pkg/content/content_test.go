package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"aphorist/pkg/commands/treestore"
	"aphorist/pkg/logger"
	"aphorist/pkg/models"
)

func newService(t *testing.T) *Service {
	t.Helper()
	logger.Init()
	ts := treestore.New(t.TempDir())
	if err := ts.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = ts.Disconnect(context.Background()) })
	return New(ts)
}

// fixClock makes created-at timestamps deterministic and strictly
// increasing by one millisecond per call.
func fixClock(s *Service, start int64) {
	t := start
	s.now = func() time.Time {
		t++
		return time.UnixMilli(t)
	}
}

func TestCreatePostValidation(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	if _, err := s.CreatePost(ctx, "", "a@example.com"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty content: %v", err)
	}
	if _, err := s.CreatePost(ctx, "hello", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty author: %v", err)
	}
}

func TestCreatePostWritesIndexes(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	fixClock(s, 1000)

	p, err := s.CreatePost(ctx, "hello world", "ann@example.com")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	got, ok, err := s.GetPost(ctx, p.ID)
	if err != nil || !ok {
		t.Fatalf("GetPost: (%v, %v, %v)", got, ok, err)
	}
	if got.Content != "hello world" || got.AuthorID != "ann@example.com" || got.CreatedAt != p.CreatedAt {
		t.Fatalf("round trip: %+v", got)
	}

	page, err := s.Feed(ctx, 0, 10)
	if err != nil || len(page.Posts) != 1 || page.Posts[0].ID != p.ID {
		t.Fatalf("feed: (%+v, %v)", page, err)
	}

	ids, err := s.UserPosts(ctx, "ann@example.com")
	if err != nil || len(ids) != 1 || ids[0] != p.ID {
		t.Fatalf("user posts: (%v, %v)", ids, err)
	}
}

func TestReplyRequiresExistingParent(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.CreateReply(ctx, ReplyInput{Text: "hi", ParentID: "missing", AuthorID: "a@example.com"})
	if !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("want ErrParentNotFound, got %v", err)
	}
}

// Three replies quoting the same excerpt must land in the per-quote index
// in creation order, and the quote counter must track the cardinality while
// keeping the original quote payload readable.
func TestQuotedRepliesIndexAndCounter(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	fixClock(s, 5000)

	post, err := s.CreatePost(ctx, "the source text", "ann@example.com")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	q := &models.Quote{Text: "source", SourceID: post.ID, SelectionRange: models.SelectionRange{Start: 4, End: 10}}
	var replies []*models.Reply
	for i := 0; i < 3; i++ {
		r, err := s.CreateReply(ctx, ReplyInput{
			Text: "reply", ParentID: post.ID, AuthorID: "bob@example.com", Quote: q,
		})
		if err != nil {
			t.Fatalf("CreateReply %d: %v", i, err)
		}
		replies = append(replies, r)
	}

	threads, err := s.QuoteThreads(ctx, post.ID)
	if err != nil {
		t.Fatalf("QuoteThreads: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("threads: %+v", threads)
	}
	th := threads[0]
	if th.Count != 3 {
		t.Fatalf("counter = %d, want 3", th.Count)
	}
	if th.Quote != *q {
		t.Fatalf("quote payload drifted: %+v", th.Quote)
	}
	if len(th.Replies) != 3 {
		t.Fatalf("indexed replies: %+v", th.Replies)
	}
	for i, r := range th.Replies {
		if r.ID != replies[i].ID {
			t.Fatalf("index order: position %d has %s, want %s", i, r.ID, replies[i].ID)
		}
	}

	// The parent's reply counter follows every reply, quoted or not.
	got, _, err := s.GetPost(ctx, post.ID)
	if err != nil || got.ReplyCount != 3 {
		t.Fatalf("replyCount: (%+v, %v)", got, err)
	}
}

func TestFeedPagination(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	fixClock(s, 10000)

	var ids []string
	for i := 0; i < 5; i++ {
		p, err := s.CreatePost(ctx, "post", "a@example.com")
		if err != nil {
			t.Fatalf("CreatePost: %v", err)
		}
		ids = append(ids, p.ID)
	}

	// First page: two newest posts.
	page, err := s.Feed(ctx, 0, 2)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(page.Posts) != 2 || page.Posts[0].ID != ids[4] || page.Posts[1].ID != ids[3] {
		t.Fatalf("page 1: %+v", page.Posts)
	}
	if page.NextBefore == 0 {
		t.Fatalf("expected continuation cursor")
	}

	// Second page continues strictly before the cursor, no overlap.
	page2, err := s.Feed(ctx, page.NextBefore, 2)
	if err != nil {
		t.Fatalf("Feed page 2: %v", err)
	}
	if len(page2.Posts) != 2 || page2.Posts[0].ID != ids[2] || page2.Posts[1].ID != ids[1] {
		t.Fatalf("page 2: %+v", page2.Posts)
	}

	page3, err := s.Feed(ctx, page2.NextBefore, 2)
	if err != nil {
		t.Fatalf("Feed page 3: %v", err)
	}
	if len(page3.Posts) != 1 || page3.Posts[0].ID != ids[0] {
		t.Fatalf("page 3: %+v", page3.Posts)
	}
}

func TestReplyWithoutQuoteSkipsQuoteIndexes(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	fixClock(s, 2000)

	post, err := s.CreatePost(ctx, "plain", "a@example.com")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	r, err := s.CreateReply(ctx, ReplyInput{Text: "no quote", ParentID: post.ID, AuthorID: "b@example.com"})
	if err != nil {
		t.Fatalf("CreateReply: %v", err)
	}
	if r.RootPostID != post.ID {
		t.Fatalf("rootPostId should default to parent, got %q", r.RootPostID)
	}

	threads, err := s.QuoteThreads(ctx, post.ID)
	if err != nil || len(threads) != 0 {
		t.Fatalf("unexpected quote threads: (%+v, %v)", threads, err)
	}
	ids, err := s.UserReplies(ctx, "b@example.com")
	if err != nil || len(ids) != 1 || ids[0] != r.ID {
		t.Fatalf("user replies: (%v, %v)", ids, err)
	}
}
