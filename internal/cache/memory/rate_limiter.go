package memory

import (
	"context"
	"sync"
	"time"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// window is the request history of one key.
type window struct {
	hits []time.Time
	size time.Duration
}

// RateLimiter implements domain.RateLimiter with a sliding window of request
// timestamps per key. Keys with no hits inside their window are removed by a
// sweep that runs at most once per sweepEvery.
type RateLimiter struct {
	mu         sync.Mutex
	keys       map[string]*window
	now        func() time.Time
	sweepEvery time.Duration
	lastSweep  time.Time
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		keys:       make(map[string]*window),
		now:        time.Now,
		sweepEvery: time.Minute,
	}
}

// Allow reports whether one more request for key fits in the window, and
// counts it if so.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, size time.Duration) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	w, ok := rl.keys[key]
	if !ok {
		w = &window{}
		rl.keys[key] = w
	}
	w.size = size
	w.prune(now)
	if len(w.hits) >= limit {
		if len(w.hits) == 0 {
			delete(rl.keys, key)
		}
		return false, nil
	}
	w.hits = append(w.hits, now)
	return true, nil
}

// Len returns the number of keys currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.keys)
}

func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.sweepEvery {
		return
	}
	rl.lastSweep = now
	for key, w := range rl.keys {
		w.prune(now)
		if len(w.hits) == 0 {
			delete(rl.keys, key)
		}
	}
}

func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.size)
	kept := w.hits[:0]
	for _, t := range w.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.hits = kept
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
