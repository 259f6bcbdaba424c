package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter keeps one token bucket per user and forgets users idle longer
// than ttl.
type userLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	users     map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

func newUserLimiter(cfg RateLimit) *userLimiter {
	if cfg.PerMinute <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &userLimiter{
		limit: rate.Limit(cfg.PerMinute / 60),
		burst: burst,
		ttl:   ttl,
		users: make(map[string]*limiterEntry),
		now:   time.Now,
	}
}

// allow reports whether userID may make a request now. A nil limiter allows
// everything.
func (l *userLimiter) allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.ttl {
		for id, e := range l.users {
			if now.Sub(e.lastSeen) > l.ttl {
				delete(l.users, id)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.users[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// forget drops the bucket for userID.
func (l *userLimiter) forget(userID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.users, userID)
}

func (l *userLimiter) size() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
