package treestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"aphorist/pkg/commands"
	"aphorist/pkg/keys"
	"aphorist/pkg/models"
)

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.get("get", scalarKey(key))
	if err != nil || !ok {
		return "", false, err
	}
	return string(v), true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.set("set", scalarKey(key), []byte(value))
}

// Del removes the scalar and every structure element stored under each key.
func (s *Store) Del(ctx context.Context, dkeys ...string) (int64, error) {
	var removed int64
	for _, key := range dkeys {
		found := false
		if _, ok, err := s.get("del", scalarKey(key)); err != nil {
			return removed, err
		} else if ok {
			if err := s.delete("del", scalarKey(key)); err != nil {
				return removed, err
			}
			found = true
		}
		for _, ns := range []string{nsHash, nsList, nsSet, nsZSet, nsZMember} {
			prefix := elemPrefix(ns, key)
			var elems []string
			if err := s.scanPrefix("del", prefix, func(suffix string, _ []byte) bool {
				elems = append(elems, suffix)
				return true
			}); err != nil {
				return removed, err
			}
			for _, e := range elems {
				if err := s.delete("del", elemKey(ns, key, e)); err != nil {
					return removed, err
				}
				found = true
			}
		}
		if found {
			removed++
		}
	}
	return removed, nil
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, ok, err := s.get("hget", elemKey(nsHash, key, keys.Escape(field)))
	if err != nil || !ok {
		return "", false, err
	}
	return string(v), true, nil
}

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	return s.set("hset", elemKey(nsHash, key, keys.Escape(field)), []byte(value))
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	out := map[string]string{}
	var decodeErr error
	err := s.scanPrefix("hgetall", elemPrefix(nsHash, key), func(suffix string, value []byte) bool {
		field, err := keys.Unescape(suffix)
		if err != nil {
			decodeErr = err
			return false
		}
		out[field] = string(value)
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

// HIncrBy performs the read-modify-write under the field's path lock; the
// store is in-process, so holding the lock across the write is the
// single-path transaction.
func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	pk := elemKey(nsHash, key, keys.Escape(field))
	mu := s.lock(string(pk))
	mu.Lock()
	defer mu.Unlock()

	cur, ok, err := s.get("hincrby", pk)
	if err != nil {
		return 0, err
	}
	var n int64
	if ok {
		n, err = strconv.ParseInt(string(cur), 10, 64)
		if err != nil {
			return 0, commands.Wrap("hincrby", key, fmt.Errorf("field %q is not an integer: %w", field, err))
		}
	}
	n += delta
	if err := s.set("hincrby", pk, []byte(strconv.FormatInt(n, 10))); err != nil {
		return 0, err
	}
	return n, nil
}

// HIncrementQuoteCount bumps the counter for a quoted excerpt and refreshes
// the payload snapshot in the same locked write, so the pair can never
// drift apart.
func (s *Store) HIncrementQuoteCount(ctx context.Context, key, field string, quote models.Quote) (int64, error) {
	pk := elemKey(nsHash, key, keys.Escape(field))
	mu := s.lock(string(pk))
	mu.Lock()
	defer mu.Unlock()

	var qc commands.QuoteCount
	cur, ok, err := s.get("hincrementquotecount", pk)
	if err != nil {
		return 0, err
	}
	if ok {
		if err := json.Unmarshal(cur, &qc); err != nil {
			return 0, commands.Wrap("hincrementquotecount", key, fmt.Errorf("field %q holds malformed counter: %w", field, err))
		}
	}
	qc.Count++
	qc.Quote = quote
	buf, err := json.Marshal(qc)
	if err != nil {
		return 0, commands.Wrap("hincrementquotecount", key, err)
	}
	if err := s.set("hincrementquotecount", pk, buf); err != nil {
		return 0, err
	}
	return qc.Count, nil
}
