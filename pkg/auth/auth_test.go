package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"aphorist/pkg/commands"
	"aphorist/pkg/commands/treestore"
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

func okHandler() (http.Handler, *int) {
	hits := 0
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}), &hits
}

func TestBlocklistBlockUnblock(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	bl := NewBlocklist(s)

	if bl.Blocked(ctx, "10.0.0.1") {
		t.Fatalf("fresh store should not block")
	}
	if err := bl.Block(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	if !bl.Blocked(ctx, "10.0.0.1") {
		t.Fatalf("blocked ip admitted")
	}
	if err := bl.Unblock(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	if bl.Blocked(ctx, "10.0.0.1") {
		t.Fatalf("unblocked ip still blocked")
	}
}

// failingStore errors on every Get; only Get is reachable from the
// blocklist check.
type failingStore struct{ commands.Store }

func (failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, &commands.BackendError{Op: "get", Key: key, Err: errors.New("backend down")}
}

func TestBlocklistFailsOpen(t *testing.T) {
	logger.Init()
	bl := NewBlocklist(failingStore{})
	if bl.Blocked(context.Background(), "10.0.0.1") {
		t.Fatalf("store failure must admit, not block")
	}
}

func TestGateRejectsUnknownKeyAndBlockedIP(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	bl := NewBlocklist(s)
	gate := NewGate([]string{"good-key"}, Limits{RPS: 100, Burst: 100}, bl)
	h, hits := okHandler()
	wrapped := gate.Middleware(h)

	// Missing key.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: %d", rec.Code)
	}

	// Valid key.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-API-Key", "good-key")
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || *hits != 1 {
		t.Fatalf("valid key: code %d hits %d", rec.Code, *hits)
	}

	// Blocked IP rejected even with a valid key.
	if err := bl.Block(ctx, "10.0.0.1"); err != nil {
		t.Fatalf("Block: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/feed", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-API-Key", "good-key")
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || *hits != 1 {
		t.Fatalf("blocked ip: code %d hits %d", rec.Code, *hits)
	}
}

func TestGateRateLimits(t *testing.T) {
	s := newStore(t)
	gate := NewGate(nil, Limits{RPS: 1, Burst: 2}, NewBlocklist(s))
	h, _ := okHandler()
	wrapped := gate.Middleware(h)

	codes := make(map[int]int)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/feed", nil)
		req.RemoteAddr = "10.0.0.2:4000"
		wrapped.ServeHTTP(rec, req)
		codes[rec.Code]++
	}
	if codes[http.StatusOK] == 0 || codes[http.StatusTooManyRequests] == 0 {
		t.Fatalf("expected both admitted and throttled requests, got %v", codes)
	}
}
