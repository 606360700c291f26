package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Supervisor runs the app's long-lived goroutines under one shared context:
// each goroutine is named for logging, recovered on panic, and the first
// non-nil error cancels the rest so the app can unwind.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	errOnce  sync.Once
	firstErr atomic.Value

	wg       sync.WaitGroup
	doneOnce sync.Once
	doneCh   chan struct{}
}

func NewSupervisor(parent context.Context, log *slog.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		doneCh: make(chan struct{}),
	}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Go runs fn under the supervisor context. A panic or non-nil error (other
// than context.Canceled) becomes the supervisor's first error and cancels
// the shared context.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("goroutine panicked",
					slog.String("name", name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
				s.fail(fmt.Errorf("panic in %s: %v", name, r))
			}
		}()

		s.log.Debug("goroutine started", slog.String("name", name))
		if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
		s.log.Debug("goroutine stopped", slog.String("name", name))
	}()
}

func (s *Supervisor) fail(err error) {
	s.errOnce.Do(func() { s.firstErr.Store(err) })
	s.cancel()
}

func (s *Supervisor) Err() error {
	if v := s.firstErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// Stop cancels the shared context and waits for all goroutines, bounded by
// ctx.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.doneCh)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.doneCh:
		return s.Err()
	}
}
