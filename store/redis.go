package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store using Redis.
// Batches run inside MULTI/EXEC so they are never interleaved with other clients.
type RedisStore struct {
	client *redis.Client
}

// NewRedis wraps an existing Redis client.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// URL is a redis:// or rediss:// connection URL.
	// Takes precedence over Addr/Password/DB when set.
	URL string

	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number (0-15)
	DB int

	// PoolSize is the maximum number of socket connections.
	// Default: 10.
	PoolSize int

	// DialTimeout bounds connection establishment and the startup ping.
	// Default: 5 seconds.
	DialTimeout time.Duration

	// ReadTimeout and WriteTimeout bound each command.
	// Default: 3 seconds.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisFromConfig connects to Redis and verifies the connection.
// Client-level retries are disabled; callers own the retry policy.
func NewRedisFromConfig(cfg RedisConfig) (*RedisStore, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: invalid URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	opts.MaxRetries = -1
	opts.PoolSize = cfg.PoolSize
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	opts.DialTimeout = orDefault(cfg.DialTimeout, 5*time.Second)
	opts.ReadTimeout = orDefault(cfg.ReadTimeout, 3*time.Second)
	opts.WriteTimeout = orDefault(cfg.WriteTimeout, 3*time.Second)

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Get returns the string value at key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", wrapRedis("get", err)
	}
	return val, nil
}

// SetEx sets key with an expiry.
func (s *RedisStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return wrapRedis("setex", err)
	}
	return nil
}

// SetNX sets key only if absent.
func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, wrapRedis("setnx", err)
	}
	return ok, nil
}

// Del removes keys.
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return wrapRedis("del", err)
	}
	return nil
}

// HGet returns a single hash field.
func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := s.client.HGet(ctx, key, field).Result()
	if err != nil {
		return "", wrapRedis("hget", err)
	}
	return val, nil
}

// HGetAll returns every field of a hash.
func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrapRedis("hgetall", err)
	}
	return vals, nil
}

// ZRevRangeWithScores returns members by descending score.
func (s *RedisStore) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrapRedis("zrevrange", err)
	}

	members := make([]ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		members = append(members, ScoredMember{Member: member, Score: z.Score})
	}
	return members, nil
}

// ZRank returns the ascending rank of member.
func (s *RedisStore) ZRank(ctx context.Context, key, member string) (int64, error) {
	rank, err := s.client.ZRank(ctx, key, member).Result()
	if err != nil {
		return 0, wrapRedis("zrank", err)
	}
	return rank, nil
}

// ZCard returns the cardinality of a sorted set.
func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, wrapRedis("zcard", err)
	}
	return n, nil
}

// ZScore returns the score of member.
func (s *RedisStore) ZScore(ctx context.Context, key, member string) (float64, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if err != nil {
		return 0, wrapRedis("zscore", err)
	}
	return score, nil
}

// GetBit returns a single bit.
func (s *RedisStore) GetBit(ctx context.Context, key string, offset int64) (int64, error) {
	bit, err := s.client.GetBit(ctx, key, offset).Result()
	if err != nil {
		return 0, wrapRedis("getbit", err)
	}
	return bit, nil
}

// BitCount counts set bits across the whole value.
func (s *RedisStore) BitCount(ctx context.Context, key string) (int64, error) {
	n, err := s.client.BitCount(ctx, key, nil).Result()
	if err != nil {
		return 0, wrapRedis("bitcount", err)
	}
	return n, nil
}

// Incr increments a counter.
func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrapRedis("incr", err)
	}
	return n, nil
}

// Expire sets a TTL on key.
func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return wrapRedis("expire", err)
	}
	return nil
}

// TTL returns the remaining time to live of key.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, wrapRedis("ttl", err)
	}

	// Redis returns -1 if key exists but has no associated expire
	// Redis returns -2 if key does not exist
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Publish sends message to channel.
func (s *RedisStore) Publish(ctx context.Context, channel, message string) error {
	if err := s.client.Publish(ctx, channel, message).Err(); err != nil {
		return wrapRedis("publish", err)
	}
	return nil
}

// Subscribe opens a subscription and waits for the server confirmation.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, wrapRedis("subscribe", err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan Message, 64),
		done:   make(chan struct{}),
	}
	go sub.forward()
	return sub, nil
}

// Pipelined executes queued commands in a MULTI/EXEC transaction.
func (s *RedisStore) Pipelined(ctx context.Context, fn func(b Batch) error) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(&redisBatch{ctx: ctx, pipe: pipe})
	})
	if err != nil {
		return wrapRedis("exec", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrapRedis("ping", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// wrapRedis maps redis.Nil to ErrNotFound and annotates everything else.
func wrapRedis(op string, err error) error {
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("redis: %s failed: %w", op, err)
}

type redisBatch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (b *redisBatch) SetEx(key, value string, ttl time.Duration) {
	b.pipe.SetEx(b.ctx, key, value, ttl)
}

func (b *redisBatch) Del(keys ...string) {
	b.pipe.Del(b.ctx, keys...)
}

func (b *redisBatch) HSet(key, field, value string) {
	b.pipe.HSet(b.ctx, key, field, value)
}

func (b *redisBatch) HDel(key string, fields ...string) {
	b.pipe.HDel(b.ctx, key, fields...)
}

func (b *redisBatch) Expire(key string, ttl time.Duration) {
	b.pipe.Expire(b.ctx, key, ttl)
}

func (b *redisBatch) ZIncrBy(key string, increment float64, member string) {
	b.pipe.ZIncrBy(b.ctx, key, increment, member)
}

func (b *redisBatch) SetBit(key string, offset int64, value int) {
	b.pipe.SetBit(b.ctx, key, offset, value)
}

func (b *redisBatch) Publish(channel, message string) {
	b.pipe.Publish(b.ctx, channel, message)
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		select {
		case s.out <- Message{Channel: msg.Channel, Payload: msg.Payload}:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
