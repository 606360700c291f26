package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

type User struct {
	ID             string
	Email          string
	TelegramChatID int64 // 0 when the user has no linked telegram chat
	LastActiveAt   time.Time
}

type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalArchived  GoalStatus = "archived"
)

type Goal struct {
	ID          string
	UserID      string
	Title       string
	Deadline    time.Time
	Status      GoalStatus
	CompletedAt time.Time // zero when not completed
}

// Overdue reports whether the goal is past its deadline and not completed.
func (g Goal) Overdue(now time.Time) bool {
	return g.Status == GoalActive && !g.Deadline.IsZero() && g.Deadline.Before(now)
}

type SessionKind string

const (
	SessionFocus SessionKind = "focus"
	SessionBreak SessionKind = "break"
)

type Session struct {
	ID        string
	UserID    string
	Kind      SessionKind
	StartedAt time.Time
	EndedAt   time.Time // zero while running
	Completed bool      // finished without being abandoned
	Archived  bool
}

func (s Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

type PushSubscription struct {
	UserID    string
	Endpoint  string
	CreatedAt time.Time
}

// Store is the persistence API consumed by job handlers, the delivery
// pipeline, and analytics. Implementations must be safe for concurrent use.
type Store interface {
	Users(ctx context.Context) ([]User, error)
	User(ctx context.Context, id string) (User, error)
	UsersInactiveSince(ctx context.Context, cutoff time.Time) ([]User, error)
	UsersActiveBetween(ctx context.Context, from, to time.Time) ([]User, error)
	TouchUserActivity(ctx context.Context, id string, at time.Time) error

	GoalsByUser(ctx context.Context, userID string) ([]Goal, error)
	GoalsDueBetween(ctx context.Context, from, to time.Time) ([]Goal, error)
	OpenGoalCount(ctx context.Context, userID string) (int, error)

	SessionsByUser(ctx context.Context, userID string, from, to time.Time) ([]Session, error)

	PushSubscription(ctx context.Context, userID string) (PushSubscription, error)
	SavePushSubscription(ctx context.Context, sub PushSubscription) error
	DeletePushSubscription(ctx context.Context, userID string) error

	EmailAllowed(ctx context.Context, userID, notifType string) (bool, error)
	SetEmailPreference(ctx context.Context, userID, notifType string, allowed bool) error

	ArchiveSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeArchivedSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
