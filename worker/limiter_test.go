package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiterNew(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiterAllowPerKey(t *testing.T) {
	limiter := NewLimiter(0.001, 2)

	if !limiter.Allow("10.0.0.1") || !limiter.Allow("10.0.0.1") {
		t.Fatal("burst requests should be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("request beyond burst should be refused")
	}
	if !limiter.Allow("10.0.0.2") {
		t.Error("a different key has its own budget")
	}
	if limiter.Len() != 2 {
		t.Errorf("Len() = %d, want 2", limiter.Len())
	}
}

func TestLimiterWait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "client"); err != nil {
		t.Errorf("wait failed: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx, "client"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("second wait took too long")
	}
}

func TestLimiterSetRate(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	limiter.SetRate("batch-client", 1000, 10)

	for i := 0; i < 10; i++ {
		if !limiter.Allow("batch-client") {
			t.Fatalf("request %d should be allowed under the custom rate", i)
		}
	}
}
