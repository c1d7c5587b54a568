package treestore

import (
	"context"
	"fmt"

	"aphorist/pkg/commands"
	"aphorist/pkg/keys"
)

// listIndexWidth keeps list element keys lexicographically ordered by
// position. Ten digits is far beyond the list sizes this system stores.
const listIndexWidth = 10

func listElem(i int64) string {
	return fmt.Sprintf("%0*d", listIndexWidth, i)
}

// readList loads the full ordered collection for a key. The underlying
// store has no native list primitive, so mutations rewrite the collection;
// list usage volume in this system is low enough that the cost is accepted.
func (s *Store) readList(op, key string) ([]string, error) {
	var out []string
	err := s.scanPrefix(op, elemPrefix(nsList, key), func(_ string, value []byte) bool {
		out = append(out, string(value))
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) writeList(op, key string, vals []string) error {
	for i, v := range vals {
		if err := s.set(op, elemKey(nsList, key, listElem(int64(i))), []byte(v)); err != nil {
			return err
		}
	}
	return nil
}

// LPush inserts values at the head, newest first (so LPush(a) then LPush(b)
// yields [b, a]), via a full read-modify-write under the list's lock.
func (s *Store) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	prefix := string(elemPrefix(nsList, key))
	mu := s.lock(prefix)
	mu.Lock()
	defer mu.Unlock()

	cur, err := s.readList("lpush", key)
	if err != nil {
		return 0, err
	}
	next := make([]string, 0, len(cur)+len(values))
	for i := len(values) - 1; i >= 0; i-- {
		next = append(next, values[i])
	}
	next = append(next, cur...)
	if err := s.writeList("lpush", key, next); err != nil {
		return 0, err
	}
	return int64(len(next)), nil
}

// LRange returns elements from start through end inclusive; a negative end
// means "through the last element".
func (s *Store) LRange(ctx context.Context, key string, start, end int64) ([]string, error) {
	all, err := s.readList("lrange", key)
	if err != nil {
		return nil, err
	}
	return sliceRange(all, start, end), nil
}

func (s *Store) LSet(ctx context.Context, key string, index int64, value string) error {
	prefix := string(elemPrefix(nsList, key))
	mu := s.lock(prefix)
	mu.Lock()
	defer mu.Unlock()

	n, err := s.listLenLocked(key)
	if err != nil {
		return err
	}
	if index < 0 || index >= n {
		return commands.Wrap("lset", key, fmt.Errorf("index %d out of range [0,%d)", index, n))
	}
	return s.set("lset", elemKey(nsList, key, listElem(index)), []byte(value))
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	return s.listLenLocked(key)
}

func (s *Store) listLenLocked(key string) (int64, error) {
	var n int64
	err := s.scanPrefix("llen", elemPrefix(nsList, key), func(string, []byte) bool {
		n++
		return true
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SAdd writes one sentinel node per member; returns how many members were
// newly added.
func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	var added int64
	for _, m := range members {
		pk := elemKey(nsSet, key, keys.Escape(m))
		_, ok, err := s.get("sadd", pk)
		if err != nil {
			return added, err
		}
		if ok {
			continue
		}
		if err := s.set("sadd", pk, []byte(setSentinel)); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

// SMembers enumerates child keys; order is unspecified (lexicographic over
// escaped members here).
func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	var decodeErr error
	err := s.scanPrefix("smembers", elemPrefix(nsSet, key), func(suffix string, _ []byte) bool {
		m, err := keys.Unescape(suffix)
		if err != nil {
			decodeErr = err
			return false
		}
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// sliceRange applies the inclusive start/end convention shared by LRange
// and ZRange. Negative indices count from the end, Redis-style.
func sliceRange(all []string, start, end int64) []string {
	n := int64(len(all))
	if n == 0 {
		return nil
	}
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end += n
	}
	if end >= n {
		end = n - 1
	}
	if start > end || start >= n {
		return nil
	}
	return all[start : end+1]
}
