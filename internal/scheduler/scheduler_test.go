package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestSingleFlightSkipsOverlappingTick: a tick that takes roughly 2x the
// configured interval should not cause two ticks to run concurrently, and
// the tick that would have landed mid-run should simply not fire (drained
// and skipped by the run loop), not queue up and fire late.
func TestSingleFlightSkipsOverlappingTick(t *testing.T) {
	const interval = 30 * time.Millisecond
	var running int32
	var overlapDetected int32
	var calls int32

	slowTick := func(ctx context.Context, now time.Time) {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			atomic.StoreInt32(&overlapDetected, 1)
			return
		}
		defer atomic.StoreInt32(&running, 0)
		atomic.AddInt32(&calls, 1)
		time.Sleep(2 * interval)
	}

	sch := New(Config{Interval: interval, HardStopTimeout: time.Second}, slowTick, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 6*interval)
	defer cancel()

	sch.Run(ctx)

	if atomic.LoadInt32(&overlapDetected) != 0 {
		t.Fatalf("expected no concurrent tick execution")
	}
	if atomic.LoadInt32(&calls) == 0 {
		t.Fatalf("expected at least one tick to run")
	}
}

// TestRunFiresImmediately: the first tick does not wait a full interval.
func TestRunFiresImmediately(t *testing.T) {
	fired := make(chan struct{}, 1)
	tick := func(ctx context.Context, now time.Time) {
		select {
		case fired <- struct{}{}:
		default:
		}
	}

	sch := New(Config{Interval: time.Hour, HardStopTimeout: time.Second}, tick, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	go sch.Run(ctx)

	select {
	case <-fired:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected immediate first tick")
	}
	sch.Stop()
}

// TestStopEndsLoop: calling Stop causes Run to return promptly.
func TestStopEndsLoop(t *testing.T) {
	tick := func(ctx context.Context, now time.Time) {}
	sch := New(Config{Interval: time.Hour, HardStopTimeout: time.Second}, tick, nil)

	done := make(chan struct{})
	go func() {
		sch.Run(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	sch.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected Run to return after Stop")
	}
}
