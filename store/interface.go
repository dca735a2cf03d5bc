package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store reads when the key (or hash field, or
// sorted-set member) does not exist or has expired.
var ErrNotFound = errors.New("store: not found")

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// Message is a payload delivered on a pub/sub channel.
type Message struct {
	Channel string
	Payload string
}

// Subscription is a live subscription to a single pub/sub channel.
type Subscription interface {
	// Messages returns the delivery channel. It is closed when the
	// subscription is closed.
	Messages() <-chan Message

	// Close unsubscribes and releases resources.
	Close() error
}

// Batch queues write commands for atomic execution by Store.Pipelined.
// Commands are executed in order, without interleaving from other clients.
type Batch interface {
	SetEx(key, value string, ttl time.Duration)
	Del(keys ...string)
	HSet(key, field, value string)
	HDel(key string, fields ...string)
	Expire(key string, ttl time.Duration)
	ZIncrBy(key string, increment float64, member string)
	SetBit(key string, offset int64, value int)
	Publish(channel, message string)
}

// Store is the ephemeral key-value store client. All FocusFlow ephemeral
// state is built on these primitives, so any compliant backend can be
// substituted. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the string value at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// SetEx sets key to value with the given expiry, replacing any previous TTL.
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX sets key only if it does not exist. Returns true if it was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error

	// HGet returns a hash field, or ErrNotFound.
	HGet(ctx context.Context, key, field string) (string, error)

	// HGetAll returns all fields of a hash. A missing key yields an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// ZRevRangeWithScores returns members from start to stop (inclusive)
	// ordered by descending score.
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)

	// ZRank returns the ascending 0-based rank of member, or ErrNotFound.
	ZRank(ctx context.Context, key, member string) (int64, error)

	// ZCard returns the number of members in a sorted set.
	ZCard(ctx context.Context, key string) (int64, error)

	// ZScore returns the score of member, or ErrNotFound.
	ZScore(ctx context.Context, key, member string) (float64, error)

	// GetBit returns the bit at offset (0 for missing keys).
	GetBit(ctx context.Context, key string, offset int64) (int64, error)

	// BitCount returns the number of set bits.
	BitCount(ctx context.Context, key string) (int64, error)

	// Incr increments an integer counter, creating it at 1 if missing.
	// Existing TTLs are preserved.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a TTL on an existing key. Missing keys are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining time to live. Zero means the key is
	// missing or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Publish delivers message to current subscribers of channel.
	Publish(ctx context.Context, channel, message string) error

	// Subscribe opens a subscription to channel.
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	// Pipelined runs fn to queue commands, then executes them atomically.
	Pipelined(ctx context.Context, fn func(b Batch) error) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
