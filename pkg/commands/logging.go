package commands

import (
	"context"
	"time"

	"aphorist/pkg/logger"
	"aphorist/pkg/models"
	"aphorist/pkg/telemetry"
)

// LoggingStore wraps any backend with structured tracing and prometheus
// instrumentation. Pure pass-through: results, errors and semantics are
// untouched.
type LoggingStore struct {
	inner   Store
	backend string
}

// WithLogging decorates inner. backend names the implementation in logs and
// metric labels ("tree", "redis").
func WithLogging(inner Store, backend string) *LoggingStore {
	return &LoggingStore{inner: inner, backend: backend}
}

// Unwrap exposes the decorated backend so capability checks (RawPathAccessor,
// AtomicIncrementer) can reach the implementation.
func (s *LoggingStore) Unwrap() Store { return s.inner }

func (s *LoggingStore) observe(op, key string) func(err error) {
	start := time.Now()
	return func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			logger.Error("store_command_failed", "backend", s.backend, "op", op, "key", key, "error", err)
		} else {
			logger.Debug("store_command", "backend", s.backend, "op", op, "key", key, "duration", time.Since(start))
		}
		telemetry.CommandOps.WithLabelValues(s.backend, op, outcome).Inc()
		telemetry.CommandDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	}
}

func (s *LoggingStore) Connect(ctx context.Context) error {
	done := s.observe("connect", "")
	err := s.inner.Connect(ctx)
	done(err)
	return err
}

func (s *LoggingStore) Disconnect(ctx context.Context) error {
	done := s.observe("disconnect", "")
	err := s.inner.Disconnect(ctx)
	done(err)
	return err
}

func (s *LoggingStore) Get(ctx context.Context, key string) (string, bool, error) {
	done := s.observe("get", key)
	v, ok, err := s.inner.Get(ctx, key)
	done(err)
	return v, ok, err
}

func (s *LoggingStore) Set(ctx context.Context, key, value string) error {
	done := s.observe("set", key)
	err := s.inner.Set(ctx, key, value)
	done(err)
	return err
}

func (s *LoggingStore) Del(ctx context.Context, keys ...string) (int64, error) {
	k := ""
	if len(keys) > 0 {
		k = keys[0]
	}
	done := s.observe("del", k)
	n, err := s.inner.Del(ctx, keys...)
	done(err)
	return n, err
}

func (s *LoggingStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	done := s.observe("hget", key)
	v, ok, err := s.inner.HGet(ctx, key, field)
	done(err)
	return v, ok, err
}

func (s *LoggingStore) HSet(ctx context.Context, key, field, value string) error {
	done := s.observe("hset", key)
	err := s.inner.HSet(ctx, key, field, value)
	done(err)
	return err
}

func (s *LoggingStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	done := s.observe("hgetall", key)
	m, err := s.inner.HGetAll(ctx, key)
	done(err)
	return m, err
}

func (s *LoggingStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	done := s.observe("hincrby", key)
	n, err := s.inner.HIncrBy(ctx, key, field, delta)
	done(err)
	return n, err
}

func (s *LoggingStore) HIncrementQuoteCount(ctx context.Context, key, field string, quote models.Quote) (int64, error) {
	done := s.observe("hincrementquotecount", key)
	n, err := s.inner.HIncrementQuoteCount(ctx, key, field, quote)
	done(err)
	return n, err
}

func (s *LoggingStore) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	done := s.observe("lpush", key)
	n, err := s.inner.LPush(ctx, key, values...)
	done(err)
	return n, err
}

func (s *LoggingStore) LRange(ctx context.Context, key string, start, end int64) ([]string, error) {
	done := s.observe("lrange", key)
	v, err := s.inner.LRange(ctx, key, start, end)
	done(err)
	return v, err
}

func (s *LoggingStore) LSet(ctx context.Context, key string, index int64, value string) error {
	done := s.observe("lset", key)
	err := s.inner.LSet(ctx, key, index, value)
	done(err)
	return err
}

func (s *LoggingStore) LLen(ctx context.Context, key string) (int64, error) {
	done := s.observe("llen", key)
	n, err := s.inner.LLen(ctx, key)
	done(err)
	return n, err
}

func (s *LoggingStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	done := s.observe("sadd", key)
	n, err := s.inner.SAdd(ctx, key, members...)
	done(err)
	return n, err
}

func (s *LoggingStore) SMembers(ctx context.Context, key string) ([]string, error) {
	done := s.observe("smembers", key)
	v, err := s.inner.SMembers(ctx, key)
	done(err)
	return v, err
}

func (s *LoggingStore) ZAdd(ctx context.Context, key string, score int64, member string) (int64, error) {
	done := s.observe("zadd", key)
	n, err := s.inner.ZAdd(ctx, key, score, member)
	done(err)
	return n, err
}

func (s *LoggingStore) ZRange(ctx context.Context, key string, start, end int64) ([]string, error) {
	done := s.observe("zrange", key)
	v, err := s.inner.ZRange(ctx, key, start, end)
	done(err)
	return v, err
}

func (s *LoggingStore) ZRevRangeByScore(ctx context.Context, key string, max, min int64, limit int64) ([]ZMember, error) {
	done := s.observe("zrevrangebyscore", key)
	v, err := s.inner.ZRevRangeByScore(ctx, key, max, min, limit)
	done(err)
	return v, err
}

func (s *LoggingStore) ZScan(ctx context.Context, key, cursor, match string, count int64) (ScanResult, error) {
	done := s.observe("zscan", key)
	r, err := s.inner.ZScan(ctx, key, cursor, match, count)
	done(err)
	return r, err
}

func (s *LoggingStore) ZCard(ctx context.Context, key string) (int64, error) {
	done := s.observe("zcard", key)
	n, err := s.inner.ZCard(ctx, key)
	done(err)
	return n, err
}

func (s *LoggingStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	done := s.observe("keys", pattern)
	v, err := s.inner.Keys(ctx, pattern)
	done(err)
	return v, err
}

var _ Store = (*LoggingStore)(nil)
