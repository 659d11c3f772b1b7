// Package scheduler runs named jobs at fixed intervals, one goroutine per job.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrStopTimeout is returned by Stop when jobs are still running at the deadline.
var ErrStopTimeout = errors.New("scheduler: jobs did not stop in time")

// Scheduler owns a set of periodic jobs sharing one lifetime.
type Scheduler struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// New returns a scheduler whose jobs end when parent is cancelled or Stop is called.
func New(parent context.Context, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{logger: logger, ctx: ctx, cancel: cancel}
}

// Every runs fn immediately and then once per interval until the scheduler
// stops. A run that overruns the interval delays the next one; ticks are never
// queued. A panic inside fn is logged and the job keeps running.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	return s.schedule(name, interval, fn, true)
}

// After is Every without the immediate run: fn first runs one interval from now.
func (s *Scheduler) After(name string, interval time.Duration, fn func()) error {
	return s.schedule(name, interval, fn, false)
}

func (s *Scheduler) schedule(name string, interval time.Duration, fn func(), immediate bool) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("job %s: scheduler stopped", name)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(name, interval, fn, immediate)
	}()
	return nil
}

func (s *Scheduler) run(name string, interval time.Duration, fn func(), immediate bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Debug("Job started", "job", name, "interval", interval)
	for {
		if immediate {
			s.invoke(name, fn)
		}
		immediate = true
		select {
		case <-s.ctx.Done():
			s.logger.Debug("Job stopped", "job", name)
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) invoke(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job panicked", "job", name, "panic", r)
		}
	}()
	fn()
}

// Context is cancelled when the scheduler stops.
func (s *Scheduler) Context() context.Context {
	return s.ctx
}

// Stop cancels every job and waits up to timeout for them to return.
// Calling Stop more than once is safe.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}
