package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BradenHooton/gatekeeper/internal/config"
)

// RedisStore implements Store on top of a go-redis client.
type RedisStore struct {
	rdb redis.UniversalClient
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// NewRedisClient builds a client from configuration and verifies connectivity.
// rediss:// URLs get TLS from redis.ParseURL.
func NewRedisClient(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Only set password if not already in URL
	if opts.Password == "" && cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.PoolSize / 4
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.OpTimeout
	opts.WriteTimeout = cfg.OpTimeout
	opts.PoolTimeout = cfg.OpTimeout + time.Second
	opts.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("redis client initialized",
		slog.String("addr", opts.Addr),
		slog.Int("db", opts.DB),
		slog.Int("pool_size", opts.PoolSize))

	return client, nil
}

// classify maps go-redis errors onto the store error taxonomy. Replies from
// the server (WRONGTYPE and friends) are not outages and pass through wrapped.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return fmt.Errorf("store %s: %w", op, err)
	}
	return &UnavailableError{Op: op, Err: err}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", classify("get", err)
	}
	return val, nil
}

func (s *RedisStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return classify("setex", s.rdb.Set(ctx, key, value, ttl).Err())
}

func (s *RedisStore) SetExIfExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetXX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, classify("setxx", err)
	}
	return ok, nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return classify("del", s.rdb.Del(ctx, keys...).Err())
}

// TTL returns the remaining time-to-live. Missing keys yield ErrNotFound; keys
// without an expiry yield a zero duration.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, classify("ttl", err)
	}
	switch {
	case ttl == -2 || ttl == -2*time.Millisecond:
		return 0, ErrNotFound
	case ttl < 0:
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return classify("expire", s.rdb.Expire(ctx, key, ttl).Err())
}

// IncrWindow runs SET NX EX, INCR and PTTL inside one MULTI/EXEC. SET NX only
// creates the counter (with its expiry) when absent, so later increments never
// push the window forward.
func (s *RedisStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, window)
		incr = pipe.Incr(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, classify("incr", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), remaining, nil
}

func (s *RedisStore) LPush(ctx context.Context, key string, values ...string) error {
	return classify("lpush", s.rdb.LPush(ctx, key, toArgs(values)...).Err())
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	vals, err := s.rdb.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, classify("lrange", err)
	}
	return vals, nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	return classify("sadd", s.rdb.SAdd(ctx, key, toArgs(members)...).Err())
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) error {
	return classify("srem", s.rdb.SRem(ctx, key, toArgs(members)...).Err())
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, classify("smembers", err)
	}
	return members, nil
}

func (s *RedisStore) Tx(ctx context.Context, fn func(tx Tx)) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		fn(&redisTx{ctx: ctx, pipe: pipe})
		return nil
	})
	return classify("tx", err)
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return classify("ping", s.rdb.Ping(ctx).Err())
}

type redisTx struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (t *redisTx) SetEx(key, value string, ttl time.Duration) {
	t.pipe.Set(t.ctx, key, value, ttl)
}

func (t *redisTx) Del(keys ...string) {
	if len(keys) > 0 {
		t.pipe.Del(t.ctx, keys...)
	}
}

func (t *redisTx) Expire(key string, ttl time.Duration) {
	t.pipe.Expire(t.ctx, key, ttl)
}

func (t *redisTx) LPush(key string, values ...string) {
	t.pipe.LPush(t.ctx, key, toArgs(values)...)
}

func (t *redisTx) SAdd(key string, members ...string) {
	t.pipe.SAdd(t.ctx, key, toArgs(members)...)
}

func (t *redisTx) SRem(key string, members ...string) {
	t.pipe.SRem(t.ctx, key, toArgs(members)...)
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
