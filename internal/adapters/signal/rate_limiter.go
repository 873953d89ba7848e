package signal

import (
	"sync"
	"time"

	"github.com/jspiers/huddle/internal/domain"
)

// JoinRateLimiter bounds how often one connection may attempt to join a
// room, sliding window per connection id.
type JoinRateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ConnectionID][]time.Time
	limit    int
	interval time.Duration
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		history:  make(map[domain.ConnectionID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *JoinRateLimiter) Allow(id domain.ConnectionID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[id] = fresh
	return true
}

// Forget drops the window for a connection that went away.
func (rl *JoinRateLimiter) Forget(id domain.ConnectionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
