package counter

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wudi/hitcounter/config"
)

// RedisStore keeps every counter as a field of one hash, incremented with
// HINCRBY.
type RedisStore struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisClient builds a go-redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
		// Each increment is issued exactly once.
		MaxRetries: -1,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

// NewRedisStore creates a Redis-backed store. The hash is named prefix+key,
// e.g. "hitcounter:hits".
func NewRedisStore(client *redis.Client, prefix, key string, timeout time.Duration) *RedisStore {
	return &RedisStore{
		client:  client,
		key:     prefix + key,
		timeout: timeout,
	}
}

func (s *RedisStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(parent, s.timeout)
	}
	return parent, func() {}
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	n, err := s.client.HIncrBy(ctx, s.key, key, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: hincrby %s %q: %w", s.key, key, err)
	}
	return n, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	n, err := s.client.HGet(ctx, s.key, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: hget %s %q: %w", s.key, key, err)
	}
	return n, nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]Record, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: hgetall %s: %w", s.key, err)
	}
	records := make([]Record, 0, len(all))
	for path, v := range all {
		hits, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: field %q holds non-integer %q", path, v)
		}
		records = append(records, Record{Path: path, Hits: hits})
	}
	return sortRecords(records, limit), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
