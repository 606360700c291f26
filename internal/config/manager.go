package config

import (
	"bytes"
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.yaml.in/yaml/v3"

	"focusd/pkg/logx"
)

// Manager loads the YAML config and watches it for changes. Changes are
// validated before being committed and published to subscribers.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// subsMu guards the subscriber list so we never send on a channel that
	// is concurrently being closed in Unsubscribe().
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error

	// lastHash tracks the last committed config content so editor-induced
	// duplicate write events don't republish an unchanged config.
	lastHash uint64
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs a validation hook run by Watch() before commit/publish.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (m *Manager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Subscribe(buffer int) chan *Config {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- cfg:
		default:
			// Slow subscriber: drop the oldest pending update, keep the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				if !m.log.IsZero() {
					m.log.Debug("config update dropped (subscriber slow)")
				}
			}
		}
	}
}

// Watch blocks until ctx is done, reloading the config on file changes.
// Reloads are debounced (editors write in bursts and may truncate first).
func (m *Manager) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		cfg, err := m.Parse()
		if err != nil || cfg == nil {
			if !m.log.IsZero() {
				m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
			}
			return
		}

		h := hashConfig(cfg)
		m.mu.RLock()
		unchanged := h != 0 && h == m.lastHash
		m.mu.RUnlock()
		if unchanged {
			return
		}

		if m.validator != nil {
			vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := m.validator(vctx, cfg)
			cancel()
			if err != nil {
				if !m.log.IsZero() {
					m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
				}
				return
			}
		}

		m.Commit(cfg)
		m.publish(cfg)
		if !m.log.IsZero() {
			m.log.Info("config reloaded", logx.String("path", m.path))
		}
	}
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, reload)
	}

	for {
		select {
		case <-ctx.Done():
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timerMu.Unlock()
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if !m.log.IsZero() {
				m.log.Warn("config watcher error", logx.Err(err))
			}
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
