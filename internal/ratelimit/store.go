package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/sentra/internal/clock"
)

// CounterEntry is one window counter increment with its expiry.
type CounterEntry struct {
	Key      string
	ExpireAt time.Time
}

// CounterStore is the external store holding window counters and burst
// buckets. Increments are independent read-modify-write operations; a bounded
// over-count equal to the number of in-flight requests per key is accepted.
type CounterStore interface {
	// Counts returns the current count for each key, zero for missing keys.
	Counts(ctx context.Context, keys []string) ([]int64, error)
	// Increment adds one to every counter, setting expiry on first touch.
	Increment(ctx context.Context, entries []CounterEntry) error
	// TakeToken consumes one token from the burst bucket behind key,
	// refilling at rate tokens per second up to burst capacity.
	TakeToken(ctx context.Context, key string, rate float64, burst int) (bool, error)
}

// MemoryStore is an in-process CounterStore used in tests and single-node
// deployments without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	clock    clock.Clock
	counters map[string]memoryCounter
	buckets  map[string]memoryBucket
}

type memoryCounter struct {
	count    int64
	expireAt time.Time
}

type memoryBucket struct {
	tokens float64
	ts     time.Time
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &MemoryStore{
		clock:    clk,
		counters: make(map[string]memoryCounter),
		buckets:  make(map[string]memoryBucket),
	}
}

func (s *MemoryStore) Counts(_ context.Context, keys []string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	counts := make([]int64, len(keys))
	for i, key := range keys {
		entry, ok := s.counters[key]
		if !ok || !entry.expireAt.After(now) {
			continue
		}
		counts[i] = entry.count
	}
	return counts, nil
}

func (s *MemoryStore) Increment(_ context.Context, entries []CounterEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for _, e := range entries {
		current, ok := s.counters[e.Key]
		if !ok || !current.expireAt.After(now) {
			s.counters[e.Key] = memoryCounter{count: 1, expireAt: e.ExpireAt}
			continue
		}
		current.count++
		s.counters[e.Key] = current
	}
	return nil
}

func (s *MemoryStore) TakeToken(_ context.Context, key string, rate float64, burst int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	bucket, ok := s.buckets[key]
	if !ok {
		bucket = memoryBucket{tokens: float64(burst), ts: now}
	} else {
		delta := now.Sub(bucket.ts).Seconds()
		if delta < 0 {
			delta = 0
		}
		bucket.tokens += delta * rate
		if bucket.tokens > float64(burst) {
			bucket.tokens = float64(burst)
		}
		bucket.ts = now
	}

	allowed := bucket.tokens >= 1
	if allowed {
		bucket.tokens--
	}
	s.buckets[key] = bucket
	return allowed, nil
}

// GC drops expired counters. Callers may run it periodically; correctness
// does not depend on it since reads ignore expired entries.
func (s *MemoryStore) GC() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for key, entry := range s.counters {
		if !entry.expireAt.After(now) {
			delete(s.counters, key)
		}
	}
}
