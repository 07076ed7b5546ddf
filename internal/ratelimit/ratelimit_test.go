package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestLimiter_BurstThenRefill(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 2})
	l.now = func() time.Time { return clock }

	for i := 0; i < 2; i++ {
		if err := l.Allow(42); err != nil {
			t.Fatalf("Allow #%d: %v", i, err)
		}
	}
	if err := l.Allow(42); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third Allow = %v, want ErrRateLimited", err)
	}
	if err := l.Allow(7); err != nil {
		t.Fatalf("other user limited: %v", err)
	}

	clock = clock.Add(time.Second)
	if err := l.Allow(42); err != nil {
		t.Fatalf("Allow after refill: %v", err)
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow(1); err != nil {
			t.Fatalf("Allow: %v", err)
		}
	}
}

func TestLimiter_DropsIdleBuckets(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{RequestsPerMinute: 10})
	l.now = func() time.Time { return clock }

	_ = l.Allow(1)
	clock = clock.Add(time.Hour)
	_ = l.Allow(2)

	if _, ok := l.users[1]; ok {
		t.Error("idle bucket kept")
	}
	if _, ok := l.users[2]; !ok {
		t.Error("active bucket dropped")
	}
}
