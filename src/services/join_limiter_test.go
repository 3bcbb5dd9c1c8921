package services

import (
	"testing"
	"time"
)

func TestJoinLimiterAllow(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)

	t.Run("burst is consumed then refused", func(t *testing.T) {
		limiter := NewJoinLimiter(2, 60)
		if !limiter.Allow("alice", start) || !limiter.Allow("alice", start) {
			t.Fatalf("expected burst of 2 to be allowed")
		}
		if limiter.Allow("alice", start) {
			t.Fatalf("third attempt allowed, want refused")
		}
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		limiter := NewJoinLimiter(1, 60)
		if !limiter.Allow("alice", start) {
			t.Fatalf("first attempt refused")
		}
		if limiter.Allow("alice", start.Add(500*time.Millisecond)) {
			t.Fatalf("attempt before refill allowed")
		}
		if !limiter.Allow("alice", start.Add(2*time.Second)) {
			t.Fatalf("attempt after refill refused")
		}
	})

	t.Run("principals have separate buckets", func(t *testing.T) {
		limiter := NewJoinLimiter(1, 1)
		if !limiter.Allow("alice", start) || !limiter.Allow("bob", start) {
			t.Fatalf("expected independent buckets")
		}
	})

	t.Run("nil limiter allows", func(t *testing.T) {
		var limiter *JoinLimiter
		if !limiter.Allow("alice", start) {
			t.Fatalf("nil limiter refused")
		}
	})

	t.Run("idle principals are forgotten", func(t *testing.T) {
		limiter := NewJoinLimiter(2, 60)
		for _, p := range []string{"alice", "bob", "carol"} {
			if !limiter.Allow(p, start) {
				t.Fatalf("%s refused", p)
			}
		}
		if got := limiter.tracked(); got != 3 {
			t.Fatalf("tracked = %d, want 3", got)
		}
		if !limiter.Allow("dave", start.Add(2*time.Minute)) {
			t.Fatalf("dave refused")
		}
		if got := limiter.tracked(); got != 1 {
			t.Fatalf("tracked = %d, want 1", got)
		}
	})

	t.Run("forgotten principal gets a full burst", func(t *testing.T) {
		limiter := NewJoinLimiter(1, 1)
		if !limiter.Allow("alice", start) {
			t.Fatalf("first attempt refused")
		}
		if limiter.Allow("alice", start.Add(10*time.Second)) {
			t.Fatalf("attempt inside the window allowed")
		}
		if !limiter.Allow("alice", start.Add(2*time.Minute)) {
			t.Fatalf("attempt after idle window refused")
		}
	})
}
