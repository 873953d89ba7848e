package signal

import (
	"testing"
	"time"
)

func TestJoinRateLimiterBlocksOverLimit(t *testing.T) {
	rl := NewJoinRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("c1") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if rl.Allow("c1") {
		t.Error("attempt over the limit should be blocked")
	}
}

func TestJoinRateLimiterIsPerConnection(t *testing.T) {
	rl := NewJoinRateLimiter(1, time.Minute)

	if !rl.Allow("c1") {
		t.Fatal("first attempt blocked")
	}
	if rl.Allow("c1") {
		t.Error("c1 should be throttled")
	}
	if !rl.Allow("c2") {
		t.Error("c2 must not be affected by c1's window")
	}
}

func TestJoinRateLimiterWindowSlides(t *testing.T) {
	rl := NewJoinRateLimiter(1, 30*time.Millisecond)

	if !rl.Allow("c1") {
		t.Fatal("first attempt blocked")
	}
	if rl.Allow("c1") {
		t.Fatal("second attempt should be blocked inside the window")
	}
	time.Sleep(40 * time.Millisecond)
	if !rl.Allow("c1") {
		t.Error("attempt after the window should be allowed again")
	}
}

func TestJoinRateLimiterForget(t *testing.T) {
	rl := NewJoinRateLimiter(1, time.Minute)

	rl.Allow("c1")
	rl.Forget("c1")
	if !rl.Allow("c1") {
		t.Error("forgotten connection should start a fresh window")
	}
}
