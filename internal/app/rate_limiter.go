package app

import (
	"sync"
	"time"

	"github.com/dkeye/Live/internal/domain"
)

type rateKey struct {
	stream domain.StreamID
	user   domain.UserID
}

// RoomRateLimiter is a sliding window limiter per user per room.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[rateKey][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

// NewRoomRateLimiter allows limit events per interval. A non-positive limit
// disables limiting.
func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[rateKey][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(stream domain.StreamID, uid domain.UserID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	key := rateKey{stream: stream, user: uid}
	fresh := rl.fresh(rl.history[key], now)
	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}
	rl.history[key] = append(fresh, now)
	return true
}

// Sweep forgets keys with no attempt inside the window.
func (rl *RoomRateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	removed := 0
	for key, attempts := range rl.history {
		fresh := rl.fresh(attempts, now)
		if len(fresh) == 0 {
			delete(rl.history, key)
			removed++
			continue
		}
		rl.history[key] = fresh
	}
	return removed
}

func (rl *RoomRateLimiter) fresh(attempts []time.Time, now time.Time) []time.Time {
	windowStart := now.Add(-rl.interval)
	out := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			out = append(out, t)
		}
	}
	return out
}
