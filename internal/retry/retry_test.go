package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fast = Config{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: time.Millisecond}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoWrapsLastError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	bad := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), fast, func() error {
		calls++
		return Permanent(bad)
	})
	if err != bad {
		t.Fatalf("expected unwrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

type slowDown time.Duration

func (s slowDown) Error() string             { return "slow down" }
func (s slowDown) RetryDelay() time.Duration { return time.Duration(s) }

func TestDoWaitsOutDelayer(t *testing.T) {
	start := time.Now()
	calls := 0
	err := Do(context.Background(), Config{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}, func() error {
		calls++
		if calls == 1 {
			return slowDown(50 * time.Millisecond)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected to wait the requested delay, took %v", elapsed)
	}
}

func TestDoGivesUpWhenDelayerExceedsMaxDelay(t *testing.T) {
	start := time.Now()
	calls := 0
	err := Do(context.Background(), Config{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second}, func() error {
		calls++
		return slowDown(30 * time.Second)
	})
	var delayer Delayer
	if !errors.As(err, &delayer) || delayer.RetryDelay() != 30*time.Second {
		t.Fatalf("expected wrapped slowDown, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected to give up without sleeping, took %v", elapsed)
	}
}

func TestDoHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Config{Attempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}, func() error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
