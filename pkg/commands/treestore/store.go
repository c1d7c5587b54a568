// Package treestore implements the storage command contract over a
// hierarchical, path-addressed pebble keyspace. The underlying store only
// offers lexicographic range scans, so sorted-set semantics are emulated
// with fixed-width composite keys (see zset.go) and counter atomicity with
// per-path serialized read-modify-write (the store is embedded and
// in-process, so serialization is the single-path transaction).
package treestore

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/puzpuzpuz/xsync/v3"

	"aphorist/pkg/commands"
	"aphorist/pkg/keys"
	"aphorist/pkg/logger"
)

// Structure namespaces. Each logical structure maps onto its own subtree so
// a hash and a scalar under the same logical key cannot collide.
const (
	nsScalar = "v/"
	nsHash   = "h/"
	nsList   = "l/"
	nsSet    = "s/"
	nsZSet   = "z/"
	// nsZMember holds the member -> score reverse lookup a re-score needs.
	nsZMember = "m/"
)

// elemSep separates a structure's path from its element key. NUL sorts
// before every printable byte, so the subtree of "post/1" can never absorb
// keys of "post/10", and escaped segments can never contain it.
const elemSep = "\x00"

const setSentinel = "1"

// Store is the tree-emulated backend. One instance owns one pebble handle,
// created by Connect and reused for the process lifetime.
type Store struct {
	dir       string
	cacheSize int64

	mu sync.RWMutex
	db *pebble.DB

	// locks serializes read-modify-write sequences per physical path.
	locks *xsync.MapOf[string, *sync.Mutex]

	negScoreOnce sync.Once
}

// New returns an unconnected store rooted at dir.
func New(dir string) *Store {
	return &Store{
		dir:   dir,
		locks: xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// SetCacheSize sets the block cache size in bytes. Effective only before
// Connect; zero keeps pebble's default.
func (s *Store) SetCacheSize(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		s.cacheSize = bytes
	}
}

// Connect opens (or creates) the pebble database. Fatal at startup if it
// fails; the process must not serve traffic unconnected.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	logger.Info("tree_opening", "path", s.dir)
	opts := &pebble.Options{}
	if s.cacheSize > 0 {
		opts.Cache = pebble.NewCache(s.cacheSize)
		defer opts.Cache.Unref()
	}
	db, err := pebble.Open(s.dir, opts)
	if err != nil {
		logger.Error("tree_open_failed", "path", s.dir, "error", err)
		return commands.Wrap("connect", s.dir, err)
	}
	s.db = db
	logger.Info("tree_opened", "path", s.dir)
	return nil
}

// Disconnect closes the handle. Safe to call twice.
func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return commands.Wrap("disconnect", s.dir, err)
	}
	s.db = nil
	logger.Info("tree_closed", "path", s.dir)
	return nil
}

// handle returns the open pebble handle or ErrNotConnected.
func (s *Store) handle() (*pebble.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, commands.ErrNotConnected
	}
	return s.db, nil
}

// lock returns the mutex guarding one physical path.
func (s *Store) lock(path string) *sync.Mutex {
	m, _ := s.locks.LoadOrCompute(path, func() *sync.Mutex { return &sync.Mutex{} })
	return m
}

// pathFor maps a logical key onto its subtree path: the key is split on
// ":" and every segment is escaped, so "post:a.b" and "post:a:b" stay
// distinct.
func pathFor(key string) string {
	segs := strings.Split(key, ":")
	out := make([]string, len(segs))
	for i, seg := range segs {
		out[i] = keys.Escape(seg)
	}
	return strings.Join(out, "/")
}

// keyFor inverts pathFor.
func keyFor(path string) (string, error) {
	segs := strings.Split(path, "/")
	out := make([]string, len(segs))
	for i, seg := range segs {
		raw, err := keys.Unescape(seg)
		if err != nil {
			return "", err
		}
		out[i] = raw
	}
	return strings.Join(out, ":"), nil
}

func scalarKey(key string) []byte {
	return []byte(nsScalar + pathFor(key))
}

func elemPrefix(ns, key string) []byte {
	return []byte(ns + pathFor(key) + elemSep)
}

func elemKey(ns, key, elem string) []byte {
	return append(elemPrefix(ns, key), elem...)
}

// get reads one physical key. Missing keys are (nil, false, nil).
func (s *Store) get(op string, k []byte) ([]byte, bool, error) {
	db, err := s.handle()
	if err != nil {
		return nil, false, err
	}
	v, closer, err := db.Get(k)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, commands.Wrap(op, string(k), err)
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, true, nil
}

func (s *Store) set(op string, k, v []byte) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := db.Set(k, v, pebble.Sync); err != nil {
		return commands.Wrap(op, string(k), err)
	}
	return nil
}

func (s *Store) delete(op string, k []byte) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	if err := db.Delete(k, pebble.Sync); err != nil {
		return commands.Wrap(op, string(k), err)
	}
	return nil
}

// scanPrefix iterates every physical key under prefix in lexicographic
// order, invoking fn with the key suffix after the prefix and the value.
// fn returning false stops the scan early.
func (s *Store) scanPrefix(op string, prefix []byte, fn func(suffix string, value []byte) bool) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return commands.Wrap(op, string(prefix), err)
	}
	defer iter.Close()
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		suffix := string(iter.Key()[len(prefix):])
		val := append([]byte(nil), iter.Value()...)
		if !fn(suffix, val) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return commands.Wrap(op, string(prefix), err)
	}
	return nil
}

var _ commands.Store = (*Store)(nil)
var _ commands.RawPathAccessor = (*Store)(nil)
var _ commands.AtomicIncrementer = (*Store)(nil)
