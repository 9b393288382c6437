package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 2,
	})

	if !l.Allow("com.example") || !l.Allow("com.example") {
		t.Fatal("expected burst of two to be allowed")
	}
	if l.Allow("com.example") {
		t.Fatal("expected third event inside one second to be rejected")
	}
}

func TestLimiter_DifferentPackages(t *testing.T) {
	l := New(Config{
		DefaultRPS:   1,
		DefaultBurst: 1,
	})

	if !l.Allow("a") {
		t.Fatal("expected first event for a to be allowed")
	}
	if !l.Allow("b") {
		t.Errorf("package b blocked unexpectedly")
	}
	if l.Allow("a") {
		t.Errorf("expected package a to be limited")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(Config{})
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatalf("event %d rejected with limiting disabled", i)
		}
	}
	var nilLimiter *Limiter
	if !nilLimiter.Allow("a") {
		t.Fatal("nil limiter should allow everything")
	}
}

func TestLimiter_Wait(t *testing.T) {
	l := New(Config{
		DefaultRPS:   10, // 10 requests per second = 100ms interval
		DefaultBurst: 1,
	})

	ctx := context.Background()
	if err := l.Wait(ctx, "com.example"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.Wait(ctx, "com.example"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_WaitCanceled(t *testing.T) {
	l := New(Config{DefaultRPS: 0.001, DefaultBurst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Wait(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := l.Wait(ctx, "a"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestLimiter_ResetsWhenFull(t *testing.T) {
	l := New(Config{DefaultRPS: 1, DefaultBurst: 1, MaxKeys: 2})
	l.Allow("a")
	l.Allow("b")
	l.Allow("c")
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.limiters) != 1 {
		t.Fatalf("expected table reset to hold one key, got %d", len(l.limiters))
	}
}
