package sweeper

import (
	"context"
	"testing"
	"time"

	"aphorist/pkg/commands/treestore"
	"aphorist/pkg/content"
	"aphorist/pkg/logger"
)

func newStore(t *testing.T) *treestore.Store {
	t.Helper()
	logger.Init()
	s := treestore.New(t.TempDir())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func TestSweepCleanStore(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	svc := content.New(s)
	if _, err := svc.CreatePost(ctx, "hello", "ann@example.com"); err != nil {
		t.Fatalf("CreatePost: %v", err)
	}

	errs, err := RunOnce(ctx, s, time.Minute)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("clean store reported discrepancies: %+v", errs)
	}
}

func TestSweepDetectsDanglingFeedMember(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	// Feed references a post that does not exist.
	if _, err := s.ZAdd(ctx, "feedItems", 1000, "ghost"); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	if err := s.HSet(ctx, "feedStats", "itemCount", "1"); err != nil {
		t.Fatalf("HSet: %v", err)
	}

	errs, err := RunOnce(ctx, s, time.Minute)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(errs) == 0 {
		t.Fatalf("dangling feed member not detected")
	}
}
