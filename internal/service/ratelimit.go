package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/pkg/clock"
)

const (
	rateWindow    = 60 * time.Second
	rateShards    = 32
	rateRetention = 2 // windows kept behind the current one
)

// RateLimiter counts calls per user in fixed 60s windows.
type RateLimiter interface {
	// Allow increments the caller's bucket for the current window and returns
	// ErrRateLimited once the count exceeds limit. limit <= 0 disables the check.
	Allow(ctx context.Context, user string, limit int) error
}

// WindowIndex is floor(unix seconds / 60).
func WindowIndex(t time.Time) int64 {
	return t.Unix() / int64(rateWindow/time.Second)
}

type bucketKey struct {
	user   string
	window int64
}

type rateShard struct {
	mu          sync.Mutex
	counts      map[bucketKey]int
	lastPrunedW int64
}

// FixedWindowLimiter is the process-local RateLimiter. Buckets are spread over
// shards so unrelated users do not contend on one lock.
type FixedWindowLimiter struct {
	shards [rateShards]*rateShard
	clock  clock.Clock
}

func NewFixedWindowLimiter(c clock.Clock) *FixedWindowLimiter {
	l := &FixedWindowLimiter{clock: clock.OrReal(c)}
	for i := range l.shards {
		l.shards[i] = &rateShard{counts: make(map[bucketKey]int)}
	}
	return l
}

func (l *FixedWindowLimiter) Allow(_ context.Context, user string, limit int) error {
	if limit <= 0 {
		return nil
	}
	w := WindowIndex(l.clock.Now())
	s := l.shard(user)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastPrunedW != w {
		s.pruneLocked(w)
	}
	key := bucketKey{user: user, window: w}
	s.counts[key]++
	if s.counts[key] > limit {
		return ErrRateLimited
	}
	return nil
}

// Sweep drops stale windows from every shard.
func (l *FixedWindowLimiter) Sweep() {
	w := WindowIndex(l.clock.Now())
	for _, s := range l.shards {
		s.mu.Lock()
		s.pruneLocked(w)
		s.mu.Unlock()
	}
}

// Len returns the number of live buckets.
func (l *FixedWindowLimiter) Len() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.counts)
		s.mu.Unlock()
	}
	return n
}

func (s *rateShard) pruneLocked(current int64) {
	for k := range s.counts {
		if k.window < current-rateRetention {
			delete(s.counts, k)
		}
	}
	s.lastPrunedW = current
}

func (l *FixedWindowLimiter) shard(user string) *rateShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(user))
	return l.shards[h.Sum32()%rateShards]
}
