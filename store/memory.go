package store

import (
	"context"
	"errors"
	"math/bits"
	"sort"
	"strconv"
	"sync"
	"time"
)

// ErrWrongType is returned when a command is applied to a key holding
// a different kind of value.
var ErrWrongType = errors.New("store: operation against a key holding the wrong kind of value")

type entryKind int

const (
	kindString entryKind = iota
	kindHash
	kindZSet
)

type entry struct {
	kind      entryKind
	str       []byte // strings, counters and bitmaps
	hash      map[string]string
	zset      map[string]float64
	expiresAt time.Time // zero means no expiry
}

// MemoryStore implements Store using in-memory maps.
// Expired keys are removed lazily on access and by a periodic cleanup.
// This is useful for testing and single-instance deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	subs    map[string]map[*memorySubscription]struct{}
	now     func() time.Time

	// For periodic cleanup
	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, letting tests move time forward to expire keys.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new in-memory store.
// It starts a background goroutine that periodically cleans up expired entries.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*entry),
		subs:        make(map[string]map[*memorySubscription]struct{}),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop(time.Minute)

	return s
}

// lookup returns a live entry, evicting it if expired. Must hold mu.
func (s *MemoryStore) lookup(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// lookupKind returns a live entry of the given kind, creating it if create is set.
func (s *MemoryStore) lookupKind(key string, kind entryKind, create bool) (*entry, error) {
	e := s.lookup(key)
	if e == nil {
		if !create {
			return nil, nil
		}
		e = &entry{kind: kind}
		switch kind {
		case kindHash:
			e.hash = make(map[string]string)
		case kindZSet:
			e.zset = make(map[string]float64)
		}
		s.entries[key] = e
		return e, nil
	}
	if e.kind != kind {
		return nil, ErrWrongType
	}
	return e, nil
}

// Get returns the string value at key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupKind(key, kindString, false)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrNotFound
	}
	return string(e.str), nil
}

// SetEx sets key with an expiry.
func (s *MemoryStore) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setEx(key, value, ttl)
	return nil
}

func (s *MemoryStore) setEx(key, value string, ttl time.Duration) {
	s.entries[key] = &entry{
		kind:      kindString,
		str:       []byte(value),
		expiresAt: s.now().Add(ttl),
	}
}

// SetNX sets key only if absent.
func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lookup(key) != nil {
		return false, nil
	}
	e := &entry{kind: kindString, str: []byte(value)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return true, nil
}

// Del removes keys.
func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

// HGet returns a single hash field.
func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupKind(key, kindHash, false)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrNotFound
	}
	val, ok := e.hash[field]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

// HGetAll returns a copy of every hash field.
func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupKind(key, kindHash, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if e == nil {
		return out, nil
	}
	for k, v := range e.hash {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) hset(key, field, value string) error {
	e, err := s.lookupKind(key, kindHash, true)
	if err != nil {
		return err
	}
	e.hash[field] = value
	return nil
}

func (s *MemoryStore) hdel(key string, fields ...string) error {
	e, err := s.lookupKind(key, kindHash, false)
	if err != nil || e == nil {
		return err
	}
	for _, f := range fields {
		delete(e.hash, f)
	}
	if len(e.hash) == 0 {
		delete(s.entries, key)
	}
	return nil
}

// sortedMembers orders members by ascending score, ties broken by member
// bytes, matching Redis sorted-set ordering.
func sortedMembers(zset map[string]float64) []ScoredMember {
	members := make([]ScoredMember, 0, len(zset))
	for m, score := range zset {
		members = append(members, ScoredMember{Member: m, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})
	return members
}

// ZRevRangeWithScores returns members by descending score.
// Negative indexes count from the end, as in Redis.
func (s *MemoryStore) ZRevRangeWithScores(_ context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupKind(key, kindZSet, false)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []ScoredMember{}, nil
	}

	asc := sortedMembers(e.zset)
	n := int64(len(asc))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return []ScoredMember{}, nil
	}

	out := make([]ScoredMember, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, asc[n-1-i])
	}
	return out, nil
}

// ZRank returns the ascending rank of member.
func (s *MemoryStore) ZRank(_ context.Context, key, member string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupKind(key, kindZSet, false)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, ErrNotFound
	}
	if _, ok := e.zset[member]; !ok {
		return 0, ErrNotFound
	}
	for i, m := range sortedMembers(e.zset) {
		if m.Member == member {
			return int64(i), nil
		}
	}
	return 0, ErrNotFound
}

// ZCard returns the cardinality of a sorted set.
func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupKind(key, kindZSet, false)
	if err != nil || e == nil {
		return 0, err
	}
	return int64(len(e.zset)), nil
}

// ZScore returns the score of member.
func (s *MemoryStore) ZScore(_ context.Context, key, member string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupKind(key, kindZSet, false)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, ErrNotFound
	}
	score, ok := e.zset[member]
	if !ok {
		return 0, ErrNotFound
	}
	return score, nil
}

func (s *MemoryStore) zincrby(key string, increment float64, member string) error {
	e, err := s.lookupKind(key, kindZSet, true)
	if err != nil {
		return err
	}
	e.zset[member] += increment
	return nil
}

// GetBit returns a single bit. Bit 0 is the most significant bit of byte 0.
func (s *MemoryStore) GetBit(_ context.Context, key string, offset int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupKind(key, kindString, false)
	if err != nil || e == nil {
		return 0, err
	}
	idx := offset / 8
	if idx >= int64(len(e.str)) {
		return 0, nil
	}
	return int64(e.str[idx]>>(7-uint(offset%8))) & 1, nil
}

func (s *MemoryStore) setbit(key string, offset int64, value int) error {
	e, err := s.lookupKind(key, kindString, true)
	if err != nil {
		return err
	}
	idx := offset / 8
	if grow := idx + 1 - int64(len(e.str)); grow > 0 {
		e.str = append(e.str, make([]byte, grow)...)
	}
	mask := byte(1) << (7 - uint(offset%8))
	if value != 0 {
		e.str[idx] |= mask
	} else {
		e.str[idx] &^= mask
	}
	return nil
}

// BitCount counts set bits across the whole value.
func (s *MemoryStore) BitCount(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupKind(key, kindString, false)
	if err != nil || e == nil {
		return 0, err
	}
	var n int64
	for _, b := range e.str {
		n += int64(bits.OnesCount8(b))
	}
	return n, nil
}

// Incr increments a counter, preserving its TTL.
func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookupKind(key, kindString, true)
	if err != nil {
		return 0, err
	}
	var n int64
	if len(e.str) > 0 {
		n, err = strconv.ParseInt(string(e.str), 10, 64)
		if err != nil {
			return 0, errors.New("store: value is not an integer")
		}
	}
	n++
	e.str = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

// Expire sets a TTL on an existing key.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expire(key, ttl)
	return nil
}

func (s *MemoryStore) expire(key string, ttl time.Duration) {
	if e := s.lookup(key); e != nil {
		e.expiresAt = s.now().Add(ttl)
	}
}

// TTL returns the remaining time to live of key.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key)
	if e == nil || e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

// Publish delivers message to current subscribers. Slow subscribers
// whose buffers are full miss the message.
func (s *MemoryStore) Publish(_ context.Context, channel, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.publish(channel, message)
	return nil
}

func (s *MemoryStore) publish(channel, message string) {
	for sub := range s.subs[channel] {
		select {
		case sub.out <- Message{Channel: channel, Payload: message}:
		default:
		}
	}
}

// Subscribe opens a subscription to channel.
func (s *MemoryStore) Subscribe(_ context.Context, channel string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &memorySubscription{
		store:   s,
		channel: channel,
		out:     make(chan Message, 64),
	}
	if s.subs[channel] == nil {
		s.subs[channel] = make(map[*memorySubscription]struct{})
	}
	s.subs[channel][sub] = struct{}{}
	return sub, nil
}

// Pipelined queues commands and applies them under a single lock.
func (s *MemoryStore) Pipelined(_ context.Context, fn func(b Batch) error) error {
	batch := &memoryBatch{}
	if err := fn(batch); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, op := range batch.ops {
		if err := op(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close stops the background cleanup goroutine and closes subscriptions.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)

		s.mu.Lock()
		defer s.mu.Unlock()
		for channel, subs := range s.subs {
			for sub := range subs {
				close(sub.out)
			}
			delete(s.subs, channel)
		}
	})
	return nil
}

// cleanupLoop periodically removes expired entries.
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired entries.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

type memoryBatch struct {
	ops []func(s *MemoryStore) error
}

func (b *memoryBatch) SetEx(key, value string, ttl time.Duration) {
	b.ops = append(b.ops, func(s *MemoryStore) error {
		s.setEx(key, value, ttl)
		return nil
	})
}

func (b *memoryBatch) Del(keys ...string) {
	b.ops = append(b.ops, func(s *MemoryStore) error {
		for _, key := range keys {
			delete(s.entries, key)
		}
		return nil
	})
}

func (b *memoryBatch) HSet(key, field, value string) {
	b.ops = append(b.ops, func(s *MemoryStore) error {
		return s.hset(key, field, value)
	})
}

func (b *memoryBatch) HDel(key string, fields ...string) {
	b.ops = append(b.ops, func(s *MemoryStore) error {
		return s.hdel(key, fields...)
	})
}

func (b *memoryBatch) Expire(key string, ttl time.Duration) {
	b.ops = append(b.ops, func(s *MemoryStore) error {
		s.expire(key, ttl)
		return nil
	})
}

func (b *memoryBatch) ZIncrBy(key string, increment float64, member string) {
	b.ops = append(b.ops, func(s *MemoryStore) error {
		return s.zincrby(key, increment, member)
	})
}

func (b *memoryBatch) SetBit(key string, offset int64, value int) {
	b.ops = append(b.ops, func(s *MemoryStore) error {
		return s.setbit(key, offset, value)
	})
}

func (b *memoryBatch) Publish(channel, message string) {
	b.ops = append(b.ops, func(s *MemoryStore) error {
		s.publish(channel, message)
		return nil
	})
}

type memorySubscription struct {
	store   *MemoryStore
	channel string
	out     chan Message
	once    sync.Once
}

func (m *memorySubscription) Messages() <-chan Message {
	return m.out
}

func (m *memorySubscription) Close() error {
	m.once.Do(func() {
		m.store.mu.Lock()
		defer m.store.mu.Unlock()

		subs, ok := m.store.subs[m.channel]
		if !ok {
			return // store already closed the channel
		}
		if _, ok := subs[m]; ok {
			delete(subs, m)
			close(m.out)
		}
		if len(subs) == 0 {
			delete(m.store.subs, m.channel)
		}
	})
	return nil
}
