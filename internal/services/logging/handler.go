package logging

import (
	"context"
	"log/slog"
	"sync"
)

// AtomicHandler lets the backing handler be hot-swapped without replacing
// the slog.Logger that components already hold.
type AtomicHandler struct {
	mu sync.RWMutex
	h  slog.Handler
}

func NewAtomicHandler(h slog.Handler) *AtomicHandler { return &AtomicHandler{h: h} }

func (a *AtomicHandler) Swap(h slog.Handler) {
	a.mu.Lock()
	a.h = h
	a.mu.Unlock()
}

func (a *AtomicHandler) cur() slog.Handler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.h
}

func (a *AtomicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return a.cur().Enabled(ctx, level)
}
func (a *AtomicHandler) Handle(ctx context.Context, r slog.Record) error { return a.cur().Handle(ctx, r) }
func (a *AtomicHandler) WithAttrs(attrs []slog.Attr) slog.Handler        { return a.cur().WithAttrs(attrs) }
func (a *AtomicHandler) WithGroup(name string) slog.Handler              { return a.cur().WithGroup(name) }

type fanout struct{ hs []slog.Handler }

// Fanout duplicates records to every handler.
func Fanout(h ...slog.Handler) slog.Handler { return &fanout{hs: h} }

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.hs {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r)
		}
	}
	return nil
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.hs))
	for i, h := range f.hs {
		hs[i] = h.WithAttrs(attrs)
	}
	return &fanout{hs: hs}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.hs))
	for i, h := range f.hs {
		hs[i] = h.WithGroup(name)
	}
	return &fanout{hs: hs}
}
