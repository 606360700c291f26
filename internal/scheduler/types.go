package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrNotRunning   = errors.New("scheduler not running")
	ErrUnknownTask  = errors.New("unknown task")
	ErrTaskDisabled = errors.New("task disabled")
)

// Handler is one unit of scheduled work. Errors are recorded on the TaskRun
// and never propagate past the registry boundary.
type Handler func(ctx context.Context) error

// Task is a named periodic job. Identity is (family, name); only Enabled
// changes after registration.
type Task struct {
	Name    string
	Family  string
	Spec    string // standard 5-field cron expression
	Handler Handler
	Enabled bool
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// TaskRun records one handler execution (scheduled, once, or manual).
// Only the most recent run per task is retained.
type TaskRun struct {
	TaskName   string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	Err        string
}

// Status is derived on demand from the registry.
type Status struct {
	IsRunning       bool
	ActiveTaskNames []string
	TaskCount       int
}

// TaskEvent is the bus payload for task lifecycle events.
type TaskEvent struct {
	Family   string
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type taskEntry struct {
	task    Task
	entryID cron.EntryID
}
