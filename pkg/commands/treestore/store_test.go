package treestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"aphorist/pkg/commands"
	"aphorist/pkg/logger"
	"aphorist/pkg/models"
)

func jsonUnmarshal(raw string, v interface{}) error {
	return json.Unmarshal([]byte(raw), v)
}

func newStore(t *testing.T) *Store {
	t.Helper()
	logger.Init()
	s := New(t.TempDir())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func TestNotConnected(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, commands.ErrNotConnected) {
		t.Fatalf("Get before Connect: got %v, want ErrNotConnected", err)
	}
	if err := s.Set(ctx, "k", "v"); !errors.Is(err, commands.ErrNotConnected) {
		t.Fatalf("Set before Connect: got %v", err)
	}
	if _, err := s.ZAdd(ctx, "z", 1, "m"); !errors.Is(err, commands.ErrNotConnected) {
		t.Fatalf("ZAdd before Connect: got %v", err)
	}
}

func TestScalarAbsenceVsFailure(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	v, ok, err := s.Get(ctx, "missing")
	if err != nil || ok || v != "" {
		t.Fatalf("missing key: got (%q, %v, %v), want (\"\", false, nil)", v, ok, err)
	}
	if err := s.Set(ctx, "post:1", "hello"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err = s.Get(ctx, "post:1")
	if err != nil || !ok || v != "hello" {
		t.Fatalf("Get: got (%q, %v, %v)", v, ok, err)
	}
	n, err := s.Del(ctx, "post:1", "missing")
	if err != nil || n != 1 {
		t.Fatalf("Del: got (%d, %v), want (1, nil)", n, err)
	}
	if _, ok, _ := s.Get(ctx, "post:1"); ok {
		t.Fatalf("Get after Del still found value")
	}
}

func TestKeysWithReservedCharactersDoNotCollide(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	// "post:a.b" must not collide with "post:a,b" nor with "post:a:b".
	if err := s.Set(ctx, "post:a.b", "dot"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "post:a,b", "comma"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "post:a:b", "colon"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	for key, want := range map[string]string{"post:a.b": "dot", "post:a,b": "comma", "post:a:b": "colon"} {
		v, ok, err := s.Get(ctx, key)
		if err != nil || !ok || v != want {
			t.Fatalf("Get(%q): got (%q, %v, %v), want %q", key, v, ok, err, want)
		}
	}
}

func TestHashOps(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := "post:9"

	if _, ok, err := s.HGet(ctx, key, "content"); err != nil || ok {
		t.Fatalf("HGet missing: got (ok=%v, err=%v)", ok, err)
	}
	if err := s.HSet(ctx, key, "content", "a story"); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	if err := s.HSet(ctx, key, "author.email", "a@example.com"); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	m, err := s.HGetAll(ctx, key)
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if len(m) != 2 || m["content"] != "a story" || m["author.email"] != "a@example.com" {
		t.Fatalf("HGetAll: got %v", m)
	}
}

func TestHIncrByAtomicity(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, n := range []int{1, 10, 100} {
		field := fmt.Sprintf("count%d", n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.HIncrBy(ctx, "feedStats", field, 1); err != nil {
					t.Errorf("HIncrBy: %v", err)
				}
			}()
		}
		wg.Wait()
		v, ok, err := s.HGet(ctx, "feedStats", field)
		if err != nil || !ok {
			t.Fatalf("HGet: (%v, %v)", ok, err)
		}
		if v != fmt.Sprint(n) {
			t.Fatalf("lost updates: field %s = %s, want %d", field, v, n)
		}
	}
}

func TestHIncrementQuoteCount(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	q := models.Quote{Text: "an excerpt", SourceID: "post-1", SelectionRange: models.SelectionRange{Start: 3, End: 14}}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.HIncrementQuoteCount(ctx, "post-1:quoteCounts", "qk", q); err != nil {
				t.Errorf("HIncrementQuoteCount: %v", err)
			}
		}()
	}
	wg.Wait()

	raw, ok, err := s.HGet(ctx, "post-1:quoteCounts", "qk")
	if err != nil || !ok {
		t.Fatalf("HGet: (%v, %v)", ok, err)
	}
	var qc commands.QuoteCount
	if err := jsonUnmarshal(raw, &qc); err != nil {
		t.Fatalf("unmarshal counter: %v", err)
	}
	if qc.Count != 25 {
		t.Fatalf("count = %d, want 25", qc.Count)
	}
	if qc.Quote.Text != q.Text || qc.Quote.SourceID != q.SourceID {
		t.Fatalf("payload snapshot lost: %+v", qc.Quote)
	}
}

func TestListOps(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if n, err := s.LPush(ctx, "lst", "c"); err != nil || n != 1 {
		t.Fatalf("LPush: (%d, %v)", n, err)
	}
	if n, err := s.LPush(ctx, "lst", "a", "b"); err != nil || n != 3 {
		t.Fatalf("LPush: (%d, %v)", n, err)
	}
	got, err := s.LRange(ctx, "lst", 0, -1)
	if err != nil {
		t.Fatalf("LRange: %v", err)
	}
	want := []string{"b", "a", "c"}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("LRange: got %v, want %v", got, want)
	}
	if err := s.LSet(ctx, "lst", 1, "A"); err != nil {
		t.Fatalf("LSet: %v", err)
	}
	if err := s.LSet(ctx, "lst", 5, "x"); err == nil {
		t.Fatalf("LSet out of range: expected error")
	}
	got, _ = s.LRange(ctx, "lst", 1, 1)
	if len(got) != 1 || got[0] != "A" {
		t.Fatalf("LRange after LSet: %v", got)
	}
	if n, err := s.LLen(ctx, "lst"); err != nil || n != 3 {
		t.Fatalf("LLen: (%d, %v)", n, err)
	}
}

func TestSetOps(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	n, err := s.SAdd(ctx, "userPosts:a@example,com", "p1", "p2", "p1")
	if err != nil || n != 2 {
		t.Fatalf("SAdd: (%d, %v), want 2 added", n, err)
	}
	members, err := s.SMembers(ctx, "userPosts:a@example,com")
	if err != nil || len(members) != 2 {
		t.Fatalf("SMembers: (%v, %v)", members, err)
	}
}

func TestZSetChronologicalInvariant(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := "feedItems"

	ts := []int64{1000, 2000, 30000, 1717171717000}
	for i, score := range ts {
		member := fmt.Sprintf("post-%d", i)
		if _, err := s.ZAdd(ctx, key, score, member); err != nil {
			t.Fatalf("ZAdd: %v", err)
		}
	}
	asc, err := s.ZRange(ctx, key, 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	if len(asc) != len(ts) {
		t.Fatalf("ZRange: got %d members", len(asc))
	}
	for i := range ts {
		if asc[i] != fmt.Sprintf("post-%d", i) {
			t.Fatalf("ZRange order: got %v", asc)
		}
	}

	desc, err := s.ZRevRangeByScore(ctx, key, 1717171717000, 0, 0)
	if err != nil {
		t.Fatalf("ZRevRangeByScore: %v", err)
	}
	for i := range desc {
		if desc[i].Value != asc[len(asc)-1-i] {
			t.Fatalf("ZRevRangeByScore order: got %v", desc)
		}
	}

	limited, err := s.ZRevRangeByScore(ctx, key, 1717171717000, 0, 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("ZRevRangeByScore limit: (%v, %v)", limited, err)
	}
	if limited[0].Value != "post-3" || limited[1].Value != "post-2" {
		t.Fatalf("ZRevRangeByScore limit order: %v", limited)
	}

	bounded, err := s.ZRevRangeByScore(ctx, key, 30000, 2000, 0)
	if err != nil || len(bounded) != 2 {
		t.Fatalf("ZRevRangeByScore bounds: (%v, %v)", bounded, err)
	}
}

func TestZAddRankAndRescore(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := "replyFeedItems"

	if rank, err := s.ZAdd(ctx, key, 100, "a"); err != nil || rank != 0 {
		t.Fatalf("first ZAdd rank: (%d, %v)", rank, err)
	}
	if rank, err := s.ZAdd(ctx, key, 50, "b"); err != nil || rank != 0 {
		t.Fatalf("earlier ZAdd rank: (%d, %v)", rank, err)
	}
	if rank, err := s.ZAdd(ctx, key, 200, "c"); err != nil || rank != 2 {
		t.Fatalf("latest ZAdd rank: (%d, %v)", rank, err)
	}
	// Re-score "b" past "c": the old node must disappear.
	if rank, err := s.ZAdd(ctx, key, 300, "b"); err != nil || rank != 2 {
		t.Fatalf("re-score rank: (%d, %v)", rank, err)
	}
	if n, _ := s.ZCard(ctx, key); n != 3 {
		t.Fatalf("ZCard after re-score: %d, want 3", n)
	}
	got, _ := s.ZRange(ctx, key, 0, -1)
	want := []string{"a", "c", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order after re-score: %v", got)
		}
	}
}

func TestZScanCursorAndMatch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	key := "indexes:byTime"

	for i := 0; i < 10; i++ {
		if _, err := s.ZAdd(ctx, key, int64(1000+i), fmt.Sprintf("item-%d", i)); err != nil {
			t.Fatalf("ZAdd: %v", err)
		}
	}

	var all []commands.ZMember
	cursor := ""
	pages := 0
	for {
		res, err := s.ZScan(ctx, key, cursor, "", 3)
		if err != nil {
			t.Fatalf("ZScan: %v", err)
		}
		all = append(all, res.Items...)
		pages++
		if res.Cursor == "" {
			break
		}
		cursor = res.Cursor
		if pages > 10 {
			t.Fatalf("ZScan did not terminate")
		}
	}
	if len(all) != 10 {
		t.Fatalf("ZScan total: %d, want 10", len(all))
	}
	for i, m := range all {
		if m.Value != fmt.Sprintf("item-%d", i) || m.Score != int64(1000+i) {
			t.Fatalf("ZScan order at %d: %+v", i, m)
		}
	}

	res, err := s.ZScan(ctx, key, "", "item-3", 100)
	if err != nil || len(res.Items) != 1 || res.Items[0].Value != "item-3" {
		t.Fatalf("ZScan match: (%v, %v)", res.Items, err)
	}
}

func TestDelRemovesStructures(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.HSet(ctx, "post:7", "content", "x"); err != nil {
		t.Fatalf("HSet: %v", err)
	}
	if _, err := s.ZAdd(ctx, "post:7", 1, "m"); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	n, err := s.Del(ctx, "post:7")
	if err != nil || n != 1 {
		t.Fatalf("Del: (%d, %v)", n, err)
	}
	if m, _ := s.HGetAll(ctx, "post:7"); len(m) != 0 {
		t.Fatalf("hash survived Del: %v", m)
	}
	if c, _ := s.ZCard(ctx, "post:7"); c != 0 {
		t.Fatalf("zset survived Del: %d", c)
	}
}

func TestKeysPattern(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "post:1", "a")
	_ = s.HSet(ctx, "post:2", "content", "b")
	_ = s.Set(ctx, "reply:1", "c")

	got, err := s.Keys(ctx, "post:*")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(got) != 2 || got[0] != "post:1" || got[1] != "post:2" {
		t.Fatalf("Keys: got %v", got)
	}
}

func TestRawPathAccessor(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	if err := s.SetPath(ctx, "v/legacy/post/1", "blob"); err != nil {
		t.Fatalf("SetPath: %v", err)
	}
	paths, err := s.ListPaths(ctx, "v/legacy/")
	if err != nil || len(paths) != 1 {
		t.Fatalf("ListPaths: (%v, %v)", paths, err)
	}
	if paths[0].Path != "v/legacy/post/1" || paths[0].Value != "blob" {
		t.Fatalf("ListPaths: %+v", paths[0])
	}
	v, ok, err := s.GetPath(ctx, "v/legacy/post/1")
	if err != nil || !ok || v != "blob" {
		t.Fatalf("GetPath: (%q, %v, %v)", v, ok, err)
	}
	if err := s.DeletePath(ctx, "v/legacy/post/1"); err != nil {
		t.Fatalf("DeletePath: %v", err)
	}
	if _, ok, _ := s.GetPath(ctx, "v/legacy/post/1"); ok {
		t.Fatalf("path survived DeletePath")
	}
}
