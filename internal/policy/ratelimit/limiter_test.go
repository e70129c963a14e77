package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_AllowPerFamily(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 2})
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("expected burst of two for family a")
	}
	if l.Allow("a") {
		t.Fatal("expected family a to be throttled")
	}
	if !l.Allow("b") {
		t.Fatal("expected family b to have its own bucket")
	}
	if !l.Allow("") {
		t.Fatal("expected unnamed family to have its own bucket")
	}
}

func TestLimiter_DisabledAllowsEverything(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		if !l.Allow("a") {
			t.Fatalf("submission %d throttled with limiting disabled", i)
		}
	}
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	if err := l.Wait(context.Background(), "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "a"); err == nil {
		t.Fatal("expected wait to fail when the next token is far away")
	}
}
