package treestore

import (
	"bytes"
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/ryanuber/go-glob"

	"aphorist/pkg/commands"
	"aphorist/pkg/keys"
	"aphorist/pkg/logger"
)

// Sorted sets are emulated with composite index keys:
//
//	z/<path>\x00<pad20(score)>_<escape(member)> -> member
//
// The zero-padded fixed-width score makes lexicographic key order equal
// numeric score order for every non-negative int64, so range reads are
// plain prefix scans. A member -> score reverse lookup under m/<path>
// makes re-scoring a two-key update instead of a subtree scan.
//
// Scores outside the padded width (negative timestamps) degrade to
// lexicographic-on-unpadded-string ordering; that is logged once and
// accepted rather than crashed on.

// ZAdd writes the composite node for (score, member), removing the
// member's previous node when re-scored, and returns the member's rank in
// ascending score order.
func (s *Store) ZAdd(ctx context.Context, key string, score int64, member string) (int64, error) {
	if score < 0 {
		s.negScoreOnce.Do(func() {
			logger.Warn("zset_score_below_padding_range", "key", key, "score", score)
		})
	}
	prefix := string(elemPrefix(nsZSet, key))
	mu := s.lock(prefix)
	mu.Lock()
	defer mu.Unlock()

	memberKey := elemKey(nsZMember, key, keys.Escape(member))
	if prev, ok, err := s.get("zadd", memberKey); err != nil {
		return 0, err
	} else if ok {
		// prev holds the member's current composite element; drop it.
		if err := s.delete("zadd", elemKey(nsZSet, key, string(prev))); err != nil {
			return 0, err
		}
	}

	composite := keys.CompositeKey(score, member)
	if err := s.set("zadd", elemKey(nsZSet, key, composite), []byte(member)); err != nil {
		return 0, err
	}
	if err := s.set("zadd", memberKey, []byte(composite)); err != nil {
		return 0, err
	}

	// Rank = number of composite keys ordered before this one.
	var rank int64
	target := composite
	err := s.scanPrefix("zadd", elemPrefix(nsZSet, key), func(suffix string, _ []byte) bool {
		if suffix < target {
			rank++
			return true
		}
		return false
	})
	if err != nil {
		return 0, err
	}
	return rank, nil
}

// ZRange returns members by ascending rank; bounds follow the shared
// inclusive convention. The whole subtree is read and sliced client-side,
// which the underlying store's prefix scan makes a single pass.
func (s *Store) ZRange(ctx context.Context, key string, start, end int64) ([]string, error) {
	var all []string
	err := s.scanPrefix("zrange", elemPrefix(nsZSet, key), func(_ string, value []byte) bool {
		all = append(all, string(value))
		return true
	})
	if err != nil {
		return nil, err
	}
	return sliceRange(all, start, end), nil
}

// ZRevRangeByScore walks the subtree backwards from the max bound,
// filtering to min <= score <= max and stopping at limit (<= 0 means no
// limit). The store's range primitive has no native reverse-by-score, so
// bound checks happen client-side on the parsed composite key.
func (s *Store) ZRevRangeByScore(ctx context.Context, key string, max, min int64, limit int64) ([]commands.ZMember, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	prefix := elemPrefix(nsZSet, key)
	// Upper bound: everything at score max sorts below pad(max) + 0xff.
	upper := append(append([]byte(nil), prefix...), keys.PadScore(max)...)
	upper = append(upper, 0xff)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upper})
	if err != nil {
		return nil, commands.Wrap("zrevrangebyscore", key, err)
	}
	defer iter.Close()

	var out []commands.ZMember
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		suffix := string(iter.Key()[len(prefix):])
		score, _, perr := keys.SplitCompositeKey(suffix)
		if perr != nil {
			return nil, perr
		}
		if score > max {
			continue
		}
		if score < min {
			break
		}
		out = append(out, commands.ZMember{Score: score, Value: string(iter.Value())})
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, commands.Wrap("zrevrangebyscore", key, err)
	}
	return out, nil
}

// ZScan pages through the set in ascending score order. The cursor is the
// composite key of the last returned item; resumption seeks just past it.
func (s *Store) ZScan(ctx context.Context, key, cursor, match string, count int64) (commands.ScanResult, error) {
	db, err := s.handle()
	if err != nil {
		return commands.ScanResult{}, err
	}
	if count <= 0 {
		count = 10
	}
	prefix := elemPrefix(nsZSet, key)
	seek := append([]byte(nil), prefix...)
	if cursor != "" {
		seek = append(seek, cursor...)
		seek = append(seek, 0x00)
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return commands.ScanResult{}, commands.Wrap("zscan", key, err)
	}
	defer iter.Close()

	var res commands.ScanResult
	var last string
	for iter.SeekGE(seek); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		suffix := string(iter.Key()[len(prefix):])
		score, member, perr := keys.SplitCompositeKey(suffix)
		if perr != nil {
			return commands.ScanResult{}, perr
		}
		if match != "" && !glob.Glob(match, member) {
			last = suffix
			continue
		}
		res.Items = append(res.Items, commands.ZMember{Score: score, Value: member})
		last = suffix
		if int64(len(res.Items)) >= count {
			// more may remain; hand back a resumable cursor
			res.Cursor = last
			return res, nil
		}
	}
	if err := iter.Error(); err != nil {
		return commands.ScanResult{}, commands.Wrap("zscan", key, err)
	}
	res.Cursor = ""
	return res, nil
}

// ZCard counts the set's immediate children.
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.scanPrefix("zcard", elemPrefix(nsZSet, key), func(string, []byte) bool {
		n++
		return true
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
