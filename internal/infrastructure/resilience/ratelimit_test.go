package resilience

import (
	"testing"
	"time"
)

func TestRateLimiterBurstThenDeny(t *testing.T) {
	l := NewRateLimiter(60, 3)
	current := time.Now()
	l.now = func() time.Time { return current }

	for i := 0; i < 3; i++ {
		if !l.Allow("agent:alpha") {
			t.Fatalf("request %d within burst denied", i)
		}
	}
	if l.Allow("agent:alpha") {
		t.Fatal("request beyond burst allowed")
	}
	// other keys have their own bucket
	if !l.Allow("agent:beta") {
		t.Fatal("unrelated key denied")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	l := NewRateLimiter(60, 2)
	current := time.Now()
	l.now = func() time.Time { return current }

	l.Allow("k")
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("bucket should be empty")
	}

	// 60/min refills one token per second
	current = current.Add(time.Second)
	if !l.Allow("k") {
		t.Fatal("refilled token denied")
	}
	if l.Allow("k") {
		t.Fatal("only one token should have refilled")
	}

	// refill caps at burst
	current = current.Add(time.Hour)
	l.Allow("k")
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("refill exceeded burst cap")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	l := NewRateLimiter(60, 2)
	current := time.Now()
	l.now = func() time.Time { return current }

	l.Allow("old")
	current = current.Add(10 * time.Minute)
	l.Allow("fresh")

	if removed := l.Sweep(5 * time.Minute); removed != 1 {
		t.Fatalf("expected 1 swept bucket, got %d", removed)
	}
	if removed := l.Sweep(5 * time.Minute); removed != 0 {
		t.Fatalf("second sweep removed %d", removed)
	}
}
