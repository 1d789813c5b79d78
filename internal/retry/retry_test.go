package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNextDelayGrowsAndCaps(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: 12}

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, time.Minute, time.Minute,
	}
	for i, w := range want {
		got, err := p.NextDelay(i + 1)
		if err != nil {
			t.Fatalf("NextDelay(%d): %v", i+1, err)
		}
		if got != w {
			t.Errorf("NextDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestNextDelayExhaustion(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: 3}

	if _, err := p.NextDelay(3); err != nil {
		t.Fatalf("NextDelay(3): %v", err)
	}
	if _, err := p.NextDelay(4); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("NextDelay(4) err = %v, want ErrAttemptsExhausted", err)
	}
	if _, err := p.NextDelay(0); err == nil {
		t.Fatal("NextDelay(0) accepted")
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	p := Policy{BaseDelay: time.Hour, MaxDelay: time.Hour, MaxAttempts: 5}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Wait(ctx, 1) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Wait err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestWaitCompletes(t *testing.T) {
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxAttempts: 5}
	if err := p.Wait(context.Background(), 2); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}
