// Package scheduler evaluates cron schedules for one job family and fires
// task handlers at their due time.
//
// The central invariant is per-task isolation: a handler error or panic is
// caught at the registry boundary, recorded as a failed TaskRun, and never
// affects sibling tasks.
//
// Stop cancels future firings only. In-flight handler executions run to
// completion and are waited for; a handler that blocks indefinitely will
// block shutdown the same way. An optional per-task timeout is a known
// hardening gap, deliberately not added here to keep the isolation contract
// unchanged.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"focusd/internal/clock"
	"focusd/internal/eventbus"
)

type Config struct {
	Family   string
	Timezone string // IANA TZ; empty means time.Local
}

type Registry struct {
	family string
	log    *slog.Logger
	clk    clock.Clock
	bus    eventbus.Bus
	parser cron.Parser

	mu     sync.Mutex
	cfg    Config
	tasks  map[string]*taskEntry
	order  []string
	c      *cron.Cron
	runCtx context.Context

	// one-time timers, keyed by task name
	tmu    sync.Mutex
	timers map[string]*time.Timer

	// most recent run per task
	hmu  sync.Mutex
	runs map[string]TaskRun

	runWG sync.WaitGroup
}

func New(cfg Config, log *slog.Logger, clk clock.Clock, bus eventbus.Bus) *Registry {
	return &Registry{
		family: cfg.Family,
		log:    log,
		clk:    clk,
		bus:    bus,
		cfg:    cfg,
		// Strict 5-field parser so the published schedule table is
		// interpreted bit-exactly (no seconds field, no descriptors).
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		tasks:  map[string]*taskEntry{},
		timers: map[string]*time.Timer{},
		runs:   map[string]TaskRun{},
	}
}

func (r *Registry) Family() string { return r.family }

// Register adds a task. The cron spec is validated eagerly so a bad
// schedule surfaces at build time, not at family start.
func (r *Registry) Register(t Task) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task name required")
	}
	if t.Handler == nil {
		return fmt.Errorf("task %s: handler required", t.Name)
	}
	if _, err := r.parser.Parse(t.Spec); err != nil {
		return fmt.Errorf("task %s: invalid spec %q: %w", t.Name, t.Spec, err)
	}
	t.Family = r.family

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.Name]; exists {
		return fmt.Errorf("task %s: already registered", t.Name)
	}
	r.tasks[t.Name] = &taskEntry{task: t}
	r.order = append(r.order, t.Name)

	if r.c != nil && t.Enabled {
		return r.addCronLocked(r.tasks[t.Name])
	}
	return nil
}

// Start begins evaluating all registered schedules. Calling Start on a
// running registry is a no-op with a warning.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		r.log.Warn("already started; ignoring start", slog.String("family", r.family))
		return nil
	}

	loc := r.loadLocationLocked()
	c := cron.New(cron.WithParser(r.parser), cron.WithLocation(loc))
	r.c = c
	r.runCtx = ctx

	for _, name := range r.order {
		e := r.tasks[name]
		if !e.task.Enabled {
			continue
		}
		if err := r.addCronLocked(e); err != nil {
			// Family fails to start as a unit; the manager logs and skips it.
			r.c = nil
			r.runCtx = nil
			return fmt.Errorf("family %s: task %s: %w", r.family, name, err)
		}
	}
	c.Start()

	r.log.Info("family started",
		slog.String("family", r.family),
		slog.Int("tasks", len(r.tasks)),
		slog.String("tz", loc.String()))
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.FamilyStarted, Data: r.family})
	}
	return nil
}

// Stop cancels all pending evaluations and prevents further firing.
// In-flight handler executions are not aborted; Stop waits for them.
// Calling Stop on an unstarted registry is a no-op with a warning.
func (r *Registry) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.runCtx = nil
	r.mu.Unlock()

	if c == nil {
		r.log.Warn("not started; ignoring stop", slog.String("family", r.family))
		return
	}

	// Cancel pending one-time firings first so no new work starts.
	r.tmu.Lock()
	for _, t := range r.timers {
		_ = t.Stop()
	}
	r.timers = map[string]*time.Timer{}
	r.tmu.Unlock()

	<-c.Stop().Done()
	r.runWG.Wait()

	r.log.Info("family stopped", slog.String("family", r.family))
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.FamilyStopped, Data: r.family})
	}
}

// RunTask invokes the handler immediately regardless of schedule and
// returns the resulting TaskRun. Used by admin triggers and tests.
func (r *Registry) RunTask(ctx context.Context, name string) (TaskRun, error) {
	r.mu.Lock()
	e, ok := r.tasks[name]
	r.mu.Unlock()
	if !ok {
		return TaskRun{}, fmt.Errorf("%w: %s/%s", ErrUnknownTask, r.family, name)
	}
	if !e.task.Enabled {
		return TaskRun{}, fmt.Errorf("%w: %s/%s", ErrTaskDisabled, r.family, name)
	}

	r.runWG.Add(1)
	defer r.runWG.Done()
	return r.execute(ctx, e.task), nil
}

// ScheduleOnce fires a task exactly once after delay, independent of its
// recurring schedule. Scheduling again under the same name replaces the
// pending firing.
func (r *Registry) ScheduleOnce(name string, delay time.Duration) error {
	r.mu.Lock()
	e, ok := r.tasks[name]
	runCtx := r.runCtx
	running := r.c != nil
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownTask, r.family, name)
	}
	if !e.task.Enabled {
		return fmt.Errorf("%w: %s/%s", ErrTaskDisabled, r.family, name)
	}
	if !running {
		return fmt.Errorf("%w: family %s", ErrNotRunning, r.family)
	}
	if delay < 0 {
		delay = 0
	}

	t := e.task
	r.tmu.Lock()
	if old, exists := r.timers[name]; exists {
		_ = old.Stop()
	}
	r.timers[name] = time.AfterFunc(delay, func() {
		r.tmu.Lock()
		delete(r.timers, name)
		r.tmu.Unlock()

		r.runWG.Add(1)
		defer r.runWG.Done()
		r.execute(runCtx, t)
	})
	r.tmu.Unlock()

	r.log.Debug("one-time firing scheduled",
		slog.String("family", r.family), slog.String("task", name), slog.Duration("delay", delay))
	return nil
}

// SetEnabled flips the only mutable field of a registered task. On a running
// registry the cron entry is added or removed accordingly.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownTask, r.family, name)
	}
	if e.task.Enabled == enabled {
		return nil
	}
	e.task.Enabled = enabled

	if r.c == nil {
		return nil
	}
	if enabled {
		return r.addCronLocked(e)
	}
	if e.entryID != 0 {
		r.c.Remove(e.entryID)
		e.entryID = 0
	}
	return nil
}

// Status derives the family view on demand; nothing is stored.
func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		IsRunning: r.c != nil,
		TaskCount: len(r.tasks),
	}
	for _, name := range r.order {
		if r.tasks[name].task.Enabled {
			st.ActiveTaskNames = append(st.ActiveTaskNames, name)
		}
	}
	return st
}

// LastRuns returns the most recent run per task.
func (r *Registry) LastRuns() map[string]TaskRun {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	out := make(map[string]TaskRun, len(r.runs))
	for k, v := range r.runs {
		out[k] = v
	}
	return out
}

func (r *Registry) addCronLocked(e *taskEntry) error {
	t := e.task
	id, err := r.c.AddFunc(t.Spec, func() {
		r.mu.Lock()
		runCtx := r.runCtx
		enabled := false
		if cur, ok := r.tasks[t.Name]; ok {
			enabled = cur.task.Enabled
		}
		r.mu.Unlock()
		if runCtx == nil || !enabled {
			return
		}
		r.runWG.Add(1)
		defer r.runWG.Done()
		r.execute(runCtx, t)
	})
	if err != nil {
		return err
	}
	e.entryID = id
	return nil
}

// execute runs one handler with full isolation: panics and errors become a
// failed TaskRun and go no further.
func (r *Registry) execute(ctx context.Context, t Task) TaskRun {
	started := r.clk.Now()
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{
			Type: eventbus.TaskStarted,
			Data: TaskEvent{Family: r.family, Name: t.Name, Started: started},
		})
	}

	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
				r.log.Error("task panicked",
					slog.String("family", r.family),
					slog.String("task", t.Name),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())))
			}
		}()
		err = t.Handler(ctx)
	}()

	finished := r.clk.Now()
	run := TaskRun{
		TaskName:   t.Name,
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    OutcomeSuccess,
	}
	ev := TaskEvent{Family: r.family, Name: t.Name, Started: started, Duration: finished.Sub(started)}
	if err != nil {
		run.Outcome = OutcomeError
		run.Err = err.Error()
		ev.Error = run.Err
		r.log.Warn("task failed",
			slog.String("family", r.family),
			slog.String("task", t.Name),
			slog.Duration("dur", ev.Duration),
			slog.Any("err", err))
		if r.bus != nil {
			r.bus.Publish(eventbus.Event{Type: eventbus.TaskFailed, Data: ev})
		}
	} else {
		r.log.Debug("task completed",
			slog.String("family", r.family),
			slog.String("task", t.Name),
			slog.Duration("dur", ev.Duration))
		if r.bus != nil {
			r.bus.Publish(eventbus.Event{Type: eventbus.TaskSucceeded, Data: ev})
		}
	}

	r.hmu.Lock()
	r.runs[t.Name] = run
	r.hmu.Unlock()
	return run
}

func (r *Registry) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(r.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		r.log.Warn("invalid timezone; falling back to Local", slog.String("tz", tz), slog.Any("err", err))
		return time.Local
	}
	return loc
}
