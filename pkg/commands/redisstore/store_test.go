package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"aphorist/pkg/commands"
	"aphorist/pkg/logger"
	"aphorist/pkg/models"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	logger.Init()
	srv := miniredis.RunT(t)
	s := New(srv.Addr(), "", 0)
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func TestNotConnected(t *testing.T) {
	s := New("127.0.0.1:0", "", 0)
	if _, _, err := s.Get(context.Background(), "k"); !errors.Is(err, commands.ErrNotConnected) {
		t.Fatalf("Get before Connect: got %v", err)
	}
}

func TestScalarAndHashPassThrough(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: (ok=%v, err=%v)", ok, err)
	}
	if err := s.Set(ctx, "post:1", "hello"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "post:1")
	if err != nil || !ok || v != "hello" {
		t.Fatalf("Get: (%q, %v, %v)", v, ok, err)
	}

	if err := s.HSet(ctx, "post:2", "content", "x"); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	if n, err := s.HIncrBy(ctx, "post:2", "replyCount", 2); err != nil || n != 2 {
		t.Fatalf("HIncrBy: (%d, %v)", n, err)
	}
	m, err := s.HGetAll(ctx, "post:2")
	if err != nil || m["content"] != "x" || m["replyCount"] != "2" {
		t.Fatalf("HGetAll: (%v, %v)", m, err)
	}

	if n, err := s.Del(ctx, "post:1", "missing"); err != nil || n != 1 {
		t.Fatalf("Del: (%d, %v)", n, err)
	}
}

func TestQuoteCountScript(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	q := models.Quote{Text: "an excerpt", SourceID: "post-1", SelectionRange: models.SelectionRange{Start: 1, End: 9}}

	for want := int64(1); want <= 3; want++ {
		n, err := s.HIncrementQuoteCount(ctx, "post-1:quoteCounts", "qk", q)
		if err != nil {
			t.Fatalf("HIncrementQuoteCount: %v", err)
		}
		if n != want {
			t.Fatalf("count = %d, want %d", n, want)
		}
	}
	raw, ok, err := s.HGet(ctx, "post-1:quoteCounts", "qk")
	if err != nil || !ok {
		t.Fatalf("HGet: (%v, %v)", ok, err)
	}
	var qc commands.QuoteCount
	if err := json.Unmarshal([]byte(raw), &qc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if qc.Count != 3 || qc.Quote.Text != q.Text {
		t.Fatalf("pair drifted: %+v", qc)
	}
}

func TestZSetPassThrough(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := "feedItems"

	for i := 0; i < 4; i++ {
		if _, err := s.ZAdd(ctx, key, int64(1000+i), fmt.Sprintf("post-%d", i)); err != nil {
			t.Fatalf("ZAdd: %v", err)
		}
	}
	asc, err := s.ZRange(ctx, key, 0, -1)
	if err != nil || len(asc) != 4 || asc[0] != "post-0" || asc[3] != "post-3" {
		t.Fatalf("ZRange: (%v, %v)", asc, err)
	}
	desc, err := s.ZRevRangeByScore(ctx, key, 1003, 1000, 2)
	if err != nil || len(desc) != 2 || desc[0].Value != "post-3" {
		t.Fatalf("ZRevRangeByScore: (%v, %v)", desc, err)
	}
	if n, err := s.ZCard(ctx, key); err != nil || n != 4 {
		t.Fatalf("ZCard: (%d, %v)", n, err)
	}
}

func TestListAndSetPassThrough(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if n, err := s.LPush(ctx, "lst", "a", "b"); err != nil || n != 2 {
		t.Fatalf("LPush: (%d, %v)", n, err)
	}
	got, err := s.LRange(ctx, "lst", 0, -1)
	if err != nil || len(got) != 2 || got[0] != "b" {
		t.Fatalf("LRange: (%v, %v)", got, err)
	}
	if err := s.LSet(ctx, "lst", 0, "B"); err != nil {
		t.Fatalf("LSet: %v", err)
	}
	if n, err := s.LLen(ctx, "lst"); err != nil || n != 2 {
		t.Fatalf("LLen: (%d, %v)", n, err)
	}
	if n, err := s.SAdd(ctx, "st", "x", "y", "x"); err != nil || n != 2 {
		t.Fatalf("SAdd: (%d, %v)", n, err)
	}
}
