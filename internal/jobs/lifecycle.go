package jobs

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Lifecycle ties the manager's shutdown to process signals. The signal
// source is injectable so tests drive it with a plain channel instead of
// real OS signals.
type Lifecycle struct {
	manager *Manager
	log     *slog.Logger

	signals <-chan os.Signal
	cancel  func()

	// ShutdownTimeout bounds how long Shutdown may take once triggered.
	ShutdownTimeout time.Duration
}

type LifecycleOption func(*Lifecycle)

// WithSignalSource replaces the default SIGINT/SIGTERM subscription.
func WithSignalSource(ch <-chan os.Signal) LifecycleOption {
	return func(l *Lifecycle) { l.signals = ch }
}

func NewLifecycle(m *Manager, log *slog.Logger, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		manager:         m,
		log:             log,
		ShutdownTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(l)
	}
	if l.signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		l.signals = ch
		l.cancel = func() { signal.Stop(ch) }
	}
	return l
}

// Wait blocks until a signal arrives or ctx is cancelled, then shuts the
// manager down. It returns the shutdown error, if any.
func (l *Lifecycle) Wait(ctx context.Context) error {
	select {
	case sig := <-l.signals:
		l.log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case <-ctx.Done():
		l.log.Info("context cancelled; shutting down")
	}
	if l.cancel != nil {
		l.cancel()
	}

	sctx, cancel := context.WithTimeout(context.Background(), l.ShutdownTimeout)
	defer cancel()
	return l.manager.Shutdown(sctx)
}
