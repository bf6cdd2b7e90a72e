package dispatcher

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter keeps one token bucket per user and forgets users idle for limiterIdleTTL.
type userLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[int64]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &userLimiter{
		limit:   limit,
		burst:   burst,
		entries: make(map[int64]*limiterEntry),
		now:     time.Now,
	}
}

func (l *userLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for id, entry := range l.entries {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(l.entries, id)
			}
		}
		l.lastSweep = now
	}

	entry, ok := l.entries[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
