package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"focusd/internal/clock"
	"focusd/internal/eventbus"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Family: "test"}, log, clock.System(), eventbus.New())
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	r := testRegistry(t)
	err := r.Register(Task{
		Name:    "bad",
		Spec:    "0 0 * * * *", // six fields
		Handler: func(context.Context) error { return nil },
		Enabled: true,
	})
	if err == nil {
		t.Fatal("expected error for six-field spec")
	}
	err = r.Register(Task{
		Name:    "alsoBad",
		Spec:    "@hourly",
		Handler: func(context.Context) error { return nil },
		Enabled: true,
	})
	if err == nil {
		t.Fatal("expected error for descriptor spec")
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := testRegistry(t)
	task := Task{Name: "a", Spec: "0 9 * * *", Handler: func(context.Context) error { return nil }, Enabled: true}
	if err := r.Register(task); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(task); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestTaskIsolation(t *testing.T) {
	r := testRegistry(t)
	var ran atomic.Bool

	mustRegister(t, r, Task{
		Name: "panics", Spec: "0 9 * * *", Enabled: true,
		Handler: func(context.Context) error { panic("kaboom") },
	})
	mustRegister(t, r, Task{
		Name: "fails", Spec: "0 9 * * *", Enabled: true,
		Handler: func(context.Context) error { return errors.New("nope") },
	})
	mustRegister(t, r, Task{
		Name: "works", Spec: "0 9 * * *", Enabled: true,
		Handler: func(context.Context) error { ran.Store(true); return nil },
	})

	ctx := context.Background()
	if run, err := r.RunTask(ctx, "panics"); err != nil {
		t.Fatalf("RunTask(panics) returned registry error: %v", err)
	} else if run.Outcome != OutcomeError {
		t.Fatalf("panics outcome = %s, want error", run.Outcome)
	}
	if run, err := r.RunTask(ctx, "fails"); err != nil {
		t.Fatalf("RunTask(fails): %v", err)
	} else if run.Outcome != OutcomeError || run.Err != "nope" {
		t.Fatalf("fails run = %+v, want error outcome with message", run)
	}
	run, err := r.RunTask(ctx, "works")
	if err != nil {
		t.Fatalf("RunTask(works): %v", err)
	}
	if run.Outcome != OutcomeSuccess || !ran.Load() {
		t.Fatalf("works run = %+v (ran=%v), want success", run, ran.Load())
	}
}

func TestRunTaskUnknownAndDisabled(t *testing.T) {
	r := testRegistry(t)
	mustRegister(t, r, Task{
		Name: "off", Spec: "0 9 * * *", Enabled: false,
		Handler: func(context.Context) error { return nil },
	})

	if _, err := r.RunTask(context.Background(), "ghost"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("err = %v, want ErrUnknownTask", err)
	}
	if _, err := r.RunTask(context.Background(), "off"); !errors.Is(err, ErrTaskDisabled) {
		t.Fatalf("err = %v, want ErrTaskDisabled", err)
	}
}

func TestStartTwiceAndStopUnstartedAreNoOps(t *testing.T) {
	r := testRegistry(t)
	mustRegister(t, r, Task{
		Name: "a", Spec: "0 9 * * *", Enabled: true,
		Handler: func(context.Context) error { return nil },
	})

	r.Stop(context.Background()) // never started

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !r.Status().IsRunning {
		t.Fatal("expected running after double Start")
	}
	r.Stop(ctx)
	if r.Status().IsRunning {
		t.Fatal("expected stopped")
	}
	r.Stop(ctx) // second stop is a no-op
}

func TestScheduleOnceFiresAndRequiresRunning(t *testing.T) {
	r := testRegistry(t)
	fired := make(chan struct{}, 1)
	mustRegister(t, r, Task{
		Name: "once", Spec: "0 9 * * *", Enabled: true,
		Handler: func(context.Context) error {
			select {
			case fired <- struct{}{}:
			default:
			}
			return nil
		},
	})

	if err := r.ScheduleOnce("once", time.Millisecond); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(ctx)

	if err := r.ScheduleOnce("once", time.Millisecond); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("one-time firing never happened")
	}

	if err := r.ScheduleOnce("ghost", time.Millisecond); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("err = %v, want ErrUnknownTask", err)
	}
}

func TestStopCancelsPendingOneTimeFiring(t *testing.T) {
	r := testRegistry(t)
	var fired atomic.Bool
	mustRegister(t, r, Task{
		Name: "later", Spec: "0 9 * * *", Enabled: true,
		Handler: func(context.Context) error { fired.Store(true); return nil },
	})

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.ScheduleOnce("later", time.Hour); err != nil {
		t.Fatalf("ScheduleOnce: %v", err)
	}
	r.Stop(ctx)

	time.Sleep(20 * time.Millisecond)
	if fired.Load() {
		t.Fatal("pending firing survived Stop")
	}
}

func TestStatusAndLastRuns(t *testing.T) {
	r := testRegistry(t)
	mustRegister(t, r, Task{
		Name: "on", Spec: "0 9 * * *", Enabled: true,
		Handler: func(context.Context) error { return nil },
	})
	mustRegister(t, r, Task{
		Name: "off", Spec: "0 9 * * *", Enabled: false,
		Handler: func(context.Context) error { return nil },
	})

	st := r.Status()
	if st.IsRunning {
		t.Fatal("unstarted registry reports running")
	}
	if st.TaskCount != 2 {
		t.Fatalf("TaskCount = %d, want 2", st.TaskCount)
	}
	if len(st.ActiveTaskNames) != 1 || st.ActiveTaskNames[0] != "on" {
		t.Fatalf("ActiveTaskNames = %v, want [on]", st.ActiveTaskNames)
	}

	if _, err := r.RunTask(context.Background(), "on"); err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	runs := r.LastRuns()
	if run, ok := runs["on"]; !ok || run.Outcome != OutcomeSuccess {
		t.Fatalf("LastRuns = %v, want success for on", runs)
	}
}

func TestSetEnabledFlipsState(t *testing.T) {
	r := testRegistry(t)
	mustRegister(t, r, Task{
		Name: "t", Spec: "0 9 * * *", Enabled: false,
		Handler: func(context.Context) error { return nil },
	})

	if _, err := r.RunTask(context.Background(), "t"); !errors.Is(err, ErrTaskDisabled) {
		t.Fatalf("err = %v, want ErrTaskDisabled", err)
	}
	if err := r.SetEnabled("t", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if _, err := r.RunTask(context.Background(), "t"); err != nil {
		t.Fatalf("RunTask after enable: %v", err)
	}
	if err := r.SetEnabled("ghost", true); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("err = %v, want ErrUnknownTask", err)
	}
}

func mustRegister(t *testing.T, r *Registry, task Task) {
	t.Helper()
	if err := r.Register(task); err != nil {
		t.Fatalf("Register(%s): %v", task.Name, err)
	}
}
