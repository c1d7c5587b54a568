// Package redisstore is the native backend: a thin adapter translating each
// storage command 1:1 onto Redis primitives. No emulation logic lives here;
// the server already guarantees atomicity for its own increment and
// sorted-set commands, and the quote-count pair rides a server-side script.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"aphorist/pkg/commands"
	"aphorist/pkg/logger"
	"aphorist/pkg/models"
)

// incrementQuoteCount increments the counter inside the JSON counter+payload
// pair and refreshes the payload snapshot, atomically on the server.
// KEYS[1] hash key, ARGV[1] field, ARGV[2] quote JSON.
var incrementQuoteCount = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
local count = 0
if cur then
  local obj = cjson.decode(cur)
  count = obj['count'] or 0
end
count = count + 1
local next = cjson.encode({count = count, quote = cjson.decode(ARGV[2])})
redis.call('HSET', KEYS[1], ARGV[1], next)
return count
`)

// Store owns one go-redis client handle; the client multiplexes concurrent
// requests over its own pool, so no serialization happens at this layer.
type Store struct {
	opts *redis.Options

	mu     sync.RWMutex
	client *redis.Client
}

// New returns an unconnected store for the given address and database.
func New(addr, password string, db int) *Store {
	return &Store{opts: &redis.Options{Addr: addr, Password: password, DB: db}}
}

// Connect dials the server and verifies it with a ping.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}
	c := redis.NewClient(s.opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		logger.Error("redis_connect_failed", "addr", s.opts.Addr, "error", err)
		return commands.Wrap("connect", s.opts.Addr, err)
	}
	s.client = c
	logger.Info("redis_connected", "addr", s.opts.Addr)
	return nil
}

func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		return commands.Wrap("disconnect", s.opts.Addr, err)
	}
	s.client = nil
	logger.Info("redis_disconnected", "addr", s.opts.Addr)
	return nil
}

func (s *Store) handle() (*redis.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, commands.ErrNotConnected
	}
	return s.client, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	c, err := s.handle()
	if err != nil {
		return "", false, err
	}
	v, err := c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, commands.Wrap("get", key, err)
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	c, err := s.handle()
	if err != nil {
		return err
	}
	return commands.Wrap("set", key, c.Set(ctx, key, value, 0).Err())
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	c, err := s.handle()
	if err != nil {
		return 0, err
	}
	n, err := c.Del(ctx, keys...).Result()
	return n, commands.Wrap("del", fmt.Sprint(keys), err)
}

func (s *Store) HGet(ctx context.Context, key, field string) (string, bool, error) {
	c, err := s.handle()
	if err != nil {
		return "", false, err
	}
	v, err := c.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, commands.Wrap("hget", key, err)
	}
	return v, true, nil
}

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	c, err := s.handle()
	if err != nil {
		return err
	}
	return commands.Wrap("hset", key, c.HSet(ctx, key, field, value).Err())
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	c, err := s.handle()
	if err != nil {
		return nil, err
	}
	m, err := c.HGetAll(ctx, key).Result()
	return m, commands.Wrap("hgetall", key, err)
}

// HIncrBy passes straight through; HINCRBY is atomic on the server.
func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	c, err := s.handle()
	if err != nil {
		return 0, err
	}
	n, err := c.HIncrBy(ctx, key, field, delta).Result()
	return n, commands.Wrap("hincrby", key, err)
}

func (s *Store) HIncrementQuoteCount(ctx context.Context, key, field string, quote models.Quote) (int64, error) {
	c, err := s.handle()
	if err != nil {
		return 0, err
	}
	qb, err := json.Marshal(quote)
	if err != nil {
		return 0, commands.Wrap("hincrementquotecount", key, err)
	}
	n, err := incrementQuoteCount.Run(ctx, c, []string{key}, field, string(qb)).Int64()
	return n, commands.Wrap("hincrementquotecount", key, err)
}

func (s *Store) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	c, err := s.handle()
	if err != nil {
		return 0, err
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := c.LPush(ctx, key, args...).Result()
	return n, commands.Wrap("lpush", key, err)
}

func (s *Store) LRange(ctx context.Context, key string, start, end int64) ([]string, error) {
	c, err := s.handle()
	if err != nil {
		return nil, err
	}
	v, err := c.LRange(ctx, key, start, end).Result()
	return v, commands.Wrap("lrange", key, err)
}

func (s *Store) LSet(ctx context.Context, key string, index int64, value string) error {
	c, err := s.handle()
	if err != nil {
		return err
	}
	return commands.Wrap("lset", key, c.LSet(ctx, key, index, value).Err())
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	c, err := s.handle()
	if err != nil {
		return 0, err
	}
	n, err := c.LLen(ctx, key).Result()
	return n, commands.Wrap("llen", key, err)
}

func (s *Store) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	c, err := s.handle()
	if err != nil {
		return 0, err
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	n, err := c.SAdd(ctx, key, args...).Result()
	return n, commands.Wrap("sadd", key, err)
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	c, err := s.handle()
	if err != nil {
		return nil, err
	}
	v, err := c.SMembers(ctx, key).Result()
	return v, commands.Wrap("smembers", key, err)
}

func (s *Store) ZAdd(ctx context.Context, key string, score int64, member string) (int64, error) {
	c, err := s.handle()
	if err != nil {
		return 0, err
	}
	if err := c.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err(); err != nil {
		return 0, commands.Wrap("zadd", key, err)
	}
	rank, err := c.ZRank(ctx, key, member).Result()
	return rank, commands.Wrap("zadd", key, err)
}

func (s *Store) ZRange(ctx context.Context, key string, start, end int64) ([]string, error) {
	c, err := s.handle()
	if err != nil {
		return nil, err
	}
	v, err := c.ZRange(ctx, key, start, end).Result()
	return v, commands.Wrap("zrange", key, err)
}

func (s *Store) ZRevRangeByScore(ctx context.Context, key string, max, min int64, limit int64) ([]commands.ZMember, error) {
	c, err := s.handle()
	if err != nil {
		return nil, err
	}
	opt := &redis.ZRangeBy{Min: fmt.Sprint(min), Max: fmt.Sprint(max)}
	if limit > 0 {
		opt.Count = limit
	}
	zs, err := c.ZRevRangeByScoreWithScores(ctx, key, opt).Result()
	if err != nil {
		return nil, commands.Wrap("zrevrangebyscore", key, err)
	}
	out := make([]commands.ZMember, 0, len(zs))
	for _, z := range zs {
		out = append(out, commands.ZMember{Score: int64(z.Score), Value: fmt.Sprint(z.Member)})
	}
	return out, nil
}

func (s *Store) ZScan(ctx context.Context, key, cursor, match string, count int64) (commands.ScanResult, error) {
	c, err := s.handle()
	if err != nil {
		return commands.ScanResult{}, err
	}
	var cur uint64
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "%d", &cur); err != nil {
			return commands.ScanResult{}, commands.Wrap("zscan", key, fmt.Errorf("malformed cursor %q", cursor))
		}
	}
	items, next, err := c.ZScan(ctx, key, cur, match, count).Result()
	if err != nil {
		return commands.ScanResult{}, commands.Wrap("zscan", key, err)
	}
	res := commands.ScanResult{}
	// ZSCAN interleaves member, score pairs.
	for i := 0; i+1 < len(items); i += 2 {
		var score float64
		_, _ = fmt.Sscanf(items[i+1], "%f", &score)
		res.Items = append(res.Items, commands.ZMember{Score: int64(score), Value: items[i]})
	}
	if next != 0 {
		res.Cursor = fmt.Sprint(next)
	}
	return res, nil
}

func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	c, err := s.handle()
	if err != nil {
		return 0, err
	}
	n, err := c.ZCard(ctx, key).Result()
	return n, commands.Wrap("zcard", key, err)
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	c, err := s.handle()
	if err != nil {
		return nil, err
	}
	v, err := c.Keys(ctx, pattern).Result()
	return v, commands.Wrap("keys", pattern, err)
}

var _ commands.Store = (*Store)(nil)
var _ commands.AtomicIncrementer = (*Store)(nil)
