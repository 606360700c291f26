// Package jobs composes the job family registries behind one lifecycle:
// initialize starts every family, shutdown stops them, and health/status
// introspection is derived on demand.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focusd/internal/scheduler"
)

type HealthState string

const (
	HealthHealthy       HealthState = "healthy"
	HealthUnhealthy     HealthState = "unhealthy"
	HealthUninitialized HealthState = "uninitialized"
)

type Health struct {
	Status   HealthState     `json:"status"`
	Families map[string]bool `json:"families"` // family -> isRunning
}

type Status struct {
	Initialized bool                        `json:"initialized"`
	Families    map[string]scheduler.Status `json:"families"`
}

type FamilyStatistics struct {
	TaskCount int                          `json:"taskCount"`
	LastRuns  map[string]scheduler.TaskRun `json:"lastRuns"`
}

type Config struct {
	// RestartGrace is the pause between stop and start on a family restart.
	RestartGrace time.Duration
}

type Manager struct {
	cfg Config
	log *slog.Logger

	mu          sync.Mutex
	families    map[string]*scheduler.Registry
	order       []string
	initialized bool
	runCtx      context.Context
}

func NewManager(cfg Config, log *slog.Logger, families ...*scheduler.Registry) *Manager {
	if cfg.RestartGrace <= 0 {
		cfg.RestartGrace = 500 * time.Millisecond
	}
	m := &Manager{
		cfg:      cfg,
		log:      log,
		families: map[string]*scheduler.Registry{},
	}
	for _, f := range families {
		m.families[f.Family()] = f
		m.order = append(m.order, f.Family())
	}
	return m
}

// Initialize starts every family. A family that fails to start is logged
// and skipped; the others start anyway and the manager still comes up
// (health will flag the dead family). A second Initialize is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		m.log.Warn("already initialized; ignoring")
		return nil
	}

	for _, name := range m.order {
		if err := m.families[name].Start(ctx); err != nil {
			m.log.Error("family failed to start; skipping",
				slog.String("family", name), slog.Any("err", err))
		}
	}
	m.initialized = true
	m.runCtx = ctx
	m.log.Info("job manager initialized", slog.Int("families", len(m.order)))
	return nil
}

// Shutdown stops every family and waits for in-flight runs. Idempotent: a
// second call finds nothing initialized and returns nil.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = false
	m.runCtx = nil
	m.mu.Unlock()

	for _, name := range m.order {
		m.families[name].Stop(ctx)
	}
	m.log.Info("job manager shut down")
	return nil
}

// RestartFamily stops one family, waits the grace period, and starts it
// again.
func (m *Manager) RestartFamily(ctx context.Context, family string) error {
	m.mu.Lock()
	f, ok := m.families[family]
	initialized := m.initialized
	runCtx := m.runCtx
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown family %q", family)
	}
	if !initialized {
		return fmt.Errorf("manager not initialized")
	}

	m.log.Info("restarting family", slog.String("family", family))
	f.Stop(ctx)

	select {
	case <-time.After(m.cfg.RestartGrace):
	case <-ctx.Done():
		return ctx.Err()
	}
	return f.Start(runCtx)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Initialized: m.initialized,
		Families:    make(map[string]scheduler.Status, len(m.families)),
	}
	for name, f := range m.families {
		st.Families[name] = f.Status()
	}
	return st
}

// HealthCheck is asymmetric on purpose: an initialized manager with any
// stopped family is unhealthy, but an uninitialized manager is merely
// uninitialized, not broken.
func (m *Manager) HealthCheck() Health {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := Health{Families: make(map[string]bool, len(m.families))}
	if !m.initialized {
		h.Status = HealthUninitialized
		for name, f := range m.families {
			h.Families[name] = f.Status().IsRunning
		}
		return h
	}

	h.Status = HealthHealthy
	for name, f := range m.families {
		running := f.Status().IsRunning
		h.Families[name] = running
		if !running {
			h.Status = HealthUnhealthy
		}
	}
	return h
}

// Statistics returns per-family task counts and most recent runs.
func (m *Manager) Statistics() map[string]FamilyStatistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]FamilyStatistics, len(m.families))
	for name, f := range m.families {
		out[name] = FamilyStatistics{
			TaskCount: f.Status().TaskCount,
			LastRuns:  f.LastRuns(),
		}
	}
	return out
}

// RunTask triggers one task immediately, bypassing its schedule.
func (m *Manager) RunTask(ctx context.Context, family, task string) (scheduler.TaskRun, error) {
	m.mu.Lock()
	f, ok := m.families[family]
	m.mu.Unlock()
	if !ok {
		return scheduler.TaskRun{}, fmt.Errorf("unknown family %q", family)
	}
	return f.RunTask(ctx, task)
}

// ScheduleOnce arranges a single extra firing of a task after delay.
func (m *Manager) ScheduleOnce(family, task string, delay time.Duration) error {
	m.mu.Lock()
	f, ok := m.families[family]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown family %q", family)
	}
	return f.ScheduleOnce(task, delay)
}
