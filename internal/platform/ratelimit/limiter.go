// Package ratelimit provides per-key fixed-window attempt counters used to
// bound MFA verification failures and SMS sends.
package ratelimit

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

// sweepThreshold triggers a lazy sweep of expired windows when a shard map
// grows past it.
const sweepThreshold = 4096

type window struct {
	start time.Time
	count int
}

type shard struct {
	mu sync.Mutex
	m  map[string]*window
}

// Limiter counts events per key within a fixed window. Counters are updated
// atomically per shard, so concurrent users do not contend on one lock.
type Limiter struct {
	shards [shardCount]*shard
	max    int
	period time.Duration
	nowF   func() time.Time
}

// NewLimiter returns a Limiter that allows max events per key per period.
func NewLimiter(max int, period time.Duration) *Limiter {
	l := &Limiter{max: max, period: period, nowF: time.Now}
	for i := range l.shards {
		l.shards[i] = &shard{m: make(map[string]*window)}
	}
	return l
}

func (l *Limiter) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return l.shards[h.Sum32()%shardCount]
}

// Exceeded reports whether key has reached the limit in the current window.
func (l *Limiter) Exceeded(key string) bool {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.m[key]
	if !ok || l.nowF().Sub(w.start) >= l.period {
		return false
	}
	return w.count >= l.max
}

// Record counts one event for key and returns the count in the current
// window. A window starts at the first event after the previous one expired.
func (l *Limiter) Record(key string) int {
	now := l.nowF()
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.m[key]
	if !ok || now.Sub(w.start) >= l.period {
		if len(s.m) >= sweepThreshold {
			for k, old := range s.m {
				if now.Sub(old.start) >= l.period {
					delete(s.m, k)
				}
			}
		}
		w = &window{start: now}
		s.m[key] = w
	}
	w.count++
	return w.count
}

// Reset clears the window for key (e.g. after a successful verification).
func (l *Limiter) Reset(key string) {
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}
