package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type joinBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// JoinLimiter enforces per-principal rate limits on gated join attempts,
// which fan out to external verifiers. A principal idle for longer than a
// full refill is forgotten, since a fresh limiter starts with the same
// full burst.
type JoinLimiter struct {
	limit     rate.Limit
	burst     int
	idleAfter time.Duration

	mu        sync.Mutex
	buckets   map[string]*joinBucket
	lastSweep time.Time
}

func NewJoinLimiter(burst, sustainedPerMinute int) *JoinLimiter {
	limit := rate.Limit(float64(sustainedPerMinute) / 60.0)
	idleAfter := time.Minute
	if sustainedPerMinute > 0 {
		idleAfter = max(idleAfter, time.Duration(burst)*time.Minute/time.Duration(sustainedPerMinute))
	}
	return &JoinLimiter{
		limit:     limit,
		burst:     burst,
		idleAfter: idleAfter,
		buckets:   make(map[string]*joinBucket),
	}
}

// Allow consumes one token for principal. A nil limiter allows everything.
func (l *JoinLimiter) Allow(principal string, now time.Time) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	bucket, ok := l.buckets[principal]
	if !ok {
		bucket = &joinBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[principal] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// sweep drops idle principals at most once per idle window.
func (l *JoinLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleAfter {
		return
	}
	l.lastSweep = now
	for principal, bucket := range l.buckets {
		if now.Sub(bucket.lastSeen) >= l.idleAfter {
			delete(l.buckets, principal)
		}
	}
}

func (l *JoinLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
