package probe

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeoutReturnsResult(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("WithTimeout = %v, want nil", err)
	}
}

func TestWithTimeoutPropagatesError(t *testing.T) {
	want := errors.New("downstream failed")
	err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("WithTimeout = %v, want %v", err, want)
	}
}

func TestWithTimeoutDeadline(t *testing.T) {
	start := time.Now()
	err := WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) error {
		time.Sleep(5 * time.Second)
		return nil
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WithTimeout = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("returned after %v, should give up at the deadline", elapsed)
	}
}

func TestWithTimeoutCancelsAbandonedCall(t *testing.T) {
	cancelled := make(chan struct{})
	err := WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WithTimeout = %v, want ErrTimeout", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Error("abandoned call never observed cancellation")
	}
}

func TestWithTimeoutLateResultDiscarded(t *testing.T) {
	// The abandoned call finishes after the wrapper returned; its error must
	// go nowhere and the goroutine must still exit.
	finished := make(chan struct{})
	err := WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) error {
		defer close(finished)
		time.Sleep(50 * time.Millisecond)
		return errors.New("late failure")
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WithTimeout = %v, want ErrTimeout", err)
	}

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Error("abandoned call never ran to completion")
	}
}
