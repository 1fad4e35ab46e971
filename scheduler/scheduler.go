// Package scheduler runs keyed, delayed one-shot tasks that are owned by the
// process: on shutdown every pending task is either run immediately or
// dropped, never left to fire after the caller has gone away.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var ErrStopped = errors.New("scheduler stopped")

type Task func(ctx context.Context) error

type ShutdownMode int

const (
	// ShutdownFlush runs every pending task immediately.
	ShutdownFlush ShutdownMode = iota
	// ShutdownAbandon drops every pending task.
	ShutdownAbandon
)

type entry struct {
	timer *time.Timer
	fn    Task
}

type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*entry
	running sync.WaitGroup
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		pending: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Schedule runs fn once after delay. Scheduling a key that is already
// pending replaces the earlier task.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if prev, ok := s.pending[key]; ok {
		prev.timer.Stop()
	}

	e := &entry{fn: fn}
	e.timer = time.AfterFunc(delay, func() { s.fire(key, e) })
	s.pending[key] = e
	return nil
}

// fire claims e if it is still the pending task for key and runs it.
func (s *Scheduler) fire(key string, e *entry) {
	s.mu.Lock()
	if s.pending[key] != e {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	s.run(key, e.fn)
}

func (s *Scheduler) run(key string, fn Task) {
	if err := fn(s.ctx); err != nil {
		s.logger.Error("scheduled task failed", "key", key, tint.Err(err))
		return
	}
	s.logger.Debug("scheduled task done", "key", key)
}

// Cancel drops the pending task for key and reports whether there was one.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.pending, key)
	return true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown stops accepting tasks and settles the pending ones according to
// mode. It waits for running tasks until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context, mode ShutdownMode) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	flush := make(map[string]Task, len(s.pending))
	// a timer that already fired but has not claimed its entry yet will find
	// it gone, so the task runs here or not at all
	for key, e := range s.pending {
		e.timer.Stop()
		if mode == ShutdownFlush {
			flush[key] = e.fn
		}
	}
	abandoned := len(s.pending) - len(flush)
	s.pending = make(map[string]*entry)
	s.running.Add(len(flush))
	s.mu.Unlock()

	if abandoned > 0 {
		s.logger.Info("abandoned scheduled tasks", "count", abandoned)
	}
	for key, fn := range flush {
		s.logger.Info("flushing scheduled task", "key", key)
		go func(key string, fn Task) {
			defer s.running.Done()
			s.run(key, fn)
		}(key, fn)
	}

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}
