package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEveryRunsImmediatelyAndRepeats(t *testing.T) {
	s := New(context.Background(), testLogger())
	var runs atomic.Int32
	if err := s.Every("count", 10*time.Millisecond, func() { runs.Add(1) }); err != nil {
		t.Fatal(err)
	}

	time.Sleep(75 * time.Millisecond)
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got := runs.Load()
	if got < 3 {
		t.Errorf("runs = %d, want at least 3", got)
	}

	time.Sleep(30 * time.Millisecond)
	if runs.Load() != got {
		t.Error("job kept running after Stop")
	}
}

func TestAfterWaitsOneInterval(t *testing.T) {
	s := New(context.Background(), testLogger())
	defer s.Stop(time.Second)

	var runs atomic.Int32
	if err := s.After("rotate", 40*time.Millisecond, func() { runs.Add(1) }); err != nil {
		t.Fatal(err)
	}

	time.Sleep(15 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Fatalf("runs after 15ms = %d, want 0", got)
	}
	deadline := time.Now().Add(time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() == 0 {
		t.Error("job never ran")
	}
}

func TestEveryRejectsBadInput(t *testing.T) {
	s := New(context.Background(), testLogger())
	if err := s.Every("zero", 0, func() {}); err == nil {
		t.Error("zero interval should fail")
	}
	_ = s.Stop(time.Second)
	if err := s.Every("late", time.Millisecond, func() {}); err == nil {
		t.Error("registering after Stop should fail")
	}
}

func TestPanicDoesNotKillJob(t *testing.T) {
	s := New(context.Background(), testLogger())
	var runs atomic.Int32
	_ = s.Every("flaky", 5*time.Millisecond, func() {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	})

	time.Sleep(50 * time.Millisecond)
	_ = s.Stop(time.Second)
	if runs.Load() < 2 {
		t.Errorf("runs = %d, job should survive a panic", runs.Load())
	}
}

func TestStopTimeout(t *testing.T) {
	s := New(context.Background(), testLogger())
	release := make(chan struct{})
	_ = s.Every("stuck", time.Millisecond, func() { <-release })
	time.Sleep(10 * time.Millisecond)

	if err := s.Stop(20 * time.Millisecond); !errors.Is(err, ErrStopTimeout) {
		t.Errorf("Stop = %v, want ErrStopTimeout", err)
	}
	close(release)
	if err := s.Stop(time.Second); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

func TestParentCancelStopsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, testLogger())
	_ = s.Every("noop", time.Millisecond, func() {})
	cancel()

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler context not cancelled with parent")
	}
	if err := s.Stop(time.Second); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
