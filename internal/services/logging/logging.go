// Package logging provides the slog-based application logger: console and
// file sinks behind an atomically swappable handler so log level and sinks
// can be changed on config hot reload without replacing the *slog.Logger
// held by running services.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

type Service struct {
	atomicH *AtomicHandler
	logger  *slog.Logger

	mu   sync.Mutex
	file *os.File
}

func New(cfg Config) (*Service, *slog.Logger) {
	ah := NewAtomicHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	svc := &Service{
		atomicH: ah,
		logger:  slog.New(ah),
	}
	svc.Apply(cfg)
	return svc, svc.logger
}

func (s *Service) Logger() *slog.Logger { return s.logger }

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := parseLevel(cfg.Level, slog.LevelInfo)

	var handlers []slog.Handler
	if cfg.Console {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}

	// File sink: close the previous handle before reopening so hot reloads
	// don't leak descriptors.
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled && strings.TrimSpace(cfg.File.Path) != "" {
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			s.file = f
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	s.atomicH.Swap(Fanout(handlers...))
}

func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atomicH.Swap(slog.NewTextHandler(io.Discard, nil))
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

func parseLevel(s string, def slog.Level) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return def
	}
}
