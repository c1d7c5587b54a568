// Package commands defines the backend-agnostic storage command contract.
// Consumers (the content pipelines, auth blocklist, migration) talk only to
// Store; which physical backend sits behind it is a wiring decision.
package commands

import (
	"context"

	"aphorist/pkg/models"
)

// ZMember is a (score, value) pair inside a sorted set. Score is typically
// a millisecond timestamp; consumers rely on score order for "most recent"
// queries.
type ZMember struct {
	Score int64  `json:"score"`
	Value string `json:"value"`
}

// QuoteCount is the counter+payload pair kept per quoted excerpt. The pair
// is stored as one JSON value per hash field so a single-path atomic update
// covers both.
type QuoteCount struct {
	Count int64        `json:"count"`
	Quote models.Quote `json:"quote"`
}

// ScanResult is one page of a cursor-based sorted-set scan. A returned
// empty cursor means the scan is complete.
type ScanResult struct {
	Cursor string
	Items  []ZMember
}

// Store is the command contract implemented by every backend.
//
// Lifecycle: Connect must succeed before any other call; operations invoked
// outside an active connection fail with ErrNotConnected. Disconnect
// releases the backend handle and is safe to call twice.
//
// Absence vs failure: reads return (value, found, err); a missing key is
// (zero, false, nil), never an error, and an error never means "missing".
//
// List bounds: LRange uses inclusive start and inclusive end; a negative
// end means "through the last element". Both backends implement exactly
// this convention.
type Store interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) (int64, error)

	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HIncrBy atomically adds delta to a hash field and returns the new
	// value. Concurrent callers never observe lost updates.
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	// HIncrementQuoteCount atomically increments the counter for a quoted
	// excerpt and refreshes its payload snapshot in the same step, so the
	// original quote stays retrievable alongside the running count.
	HIncrementQuoteCount(ctx context.Context, key, field string, quote models.Quote) (int64, error)

	LPush(ctx context.Context, key string, values ...string) (int64, error)
	LRange(ctx context.Context, key string, start, end int64) ([]string, error)
	LSet(ctx context.Context, key string, index int64, value string) error
	LLen(ctx context.Context, key string) (int64, error)

	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	// ZAdd inserts or re-scores a member and returns the member's rank in
	// ascending score order.
	ZAdd(ctx context.Context, key string, score int64, member string) (int64, error)
	// ZRange returns members by ascending rank; start/end follow the LRange
	// convention (inclusive, negative end means "through last").
	ZRange(ctx context.Context, key string, start, end int64) ([]string, error)
	// ZRevRangeByScore returns members with max >= score >= min in
	// descending score order, up to limit (limit <= 0 means no limit).
	ZRevRangeByScore(ctx context.Context, key string, max, min int64, limit int64) ([]ZMember, error)
	// ZScan pages through a set in ascending score order. cursor is opaque;
	// pass "" to start and the returned cursor to continue. match is an
	// optional glob over member values; count caps the page size.
	ZScan(ctx context.Context, key, cursor, match string, count int64) (ScanResult, error)
	ZCard(ctx context.Context, key string) (int64, error)

	// Keys enumerates keys matching a glob pattern. Best effort: on
	// backends without native pattern support this is a full scan and may
	// be slow; it is never silently wrong.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// AtomicIncrementer is the narrow capability behind HIncrBy. Backends
// either call the store's native increment primitive or fall back to an
// optimistic compare-and-swap loop with bounded retries, surfacing
// TransactionConflictError past the budget.
type AtomicIncrementer interface {
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
}

// RawPath is one physical node under a tree-emulated subtree.
type RawPath struct {
	Path  string
	Value string
}

// RawPathAccessor is the privileged escape hatch migration uses to read and
// rewrite whole subtrees beneath the command abstraction. Only the
// tree-emulated backend implements it; the native backend deliberately does
// not, which confines raw-path migrations to the store whose layout they
// understand.
type RawPathAccessor interface {
	ListPaths(ctx context.Context, prefix string) ([]RawPath, error)
	GetPath(ctx context.Context, path string) (string, bool, error)
	SetPath(ctx context.Context, path, value string) error
	DeletePath(ctx context.Context, path string) error
}
