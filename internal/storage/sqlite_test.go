package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *sqliteStore {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st.(*sqliteStore)
}

func seedUser(t *testing.T, s *sqliteStore, u User) {
	t.Helper()
	_, err := s.db.Exec("INSERT INTO users(id, email, telegram_chat_id, last_active_at) VALUES(?,?,?,?)",
		u.ID, u.Email, u.TelegramChatID, fmtTime(u.LastActiveAt))
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func seedGoal(t *testing.T, s *sqliteStore, g Goal) {
	t.Helper()
	_, err := s.db.Exec("INSERT INTO goals(id, user_id, title, deadline, status, completed_at) VALUES(?,?,?,?,?,?)",
		g.ID, g.UserID, g.Title, fmtTime(g.Deadline), string(g.Status), fmtTime(g.CompletedAt))
	if err != nil {
		t.Fatalf("seed goal: %v", err)
	}
}

func seedSession(t *testing.T, s *sqliteStore, sess Session) {
	t.Helper()
	completed, archived := 0, 0
	if sess.Completed {
		completed = 1
	}
	if sess.Archived {
		archived = 1
	}
	_, err := s.db.Exec("INSERT INTO sessions(id, user_id, kind, started_at, ended_at, completed, archived) VALUES(?,?,?,?,?,?,?)",
		sess.ID, sess.UserID, string(sess.Kind), fmtTime(sess.StartedAt), fmtTime(sess.EndedAt), completed, archived)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func TestUserLookupAndActivity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	seedUser(t, s, User{ID: "u1", Email: "a@example.com", TelegramChatID: 99, LastActiveAt: now})
	seedUser(t, s, User{ID: "u2", Email: "b@example.com", LastActiveAt: now.Add(-30 * 24 * time.Hour)})

	u, err := s.User(ctx, "u1")
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if u.Email != "a@example.com" || u.TelegramChatID != 99 || !u.LastActiveAt.Equal(now) {
		t.Fatalf("user = %+v", u)
	}
	if _, err := s.User(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	inactive, err := s.UsersInactiveSince(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("UsersInactiveSince: %v", err)
	}
	if len(inactive) != 1 || inactive[0].ID != "u2" {
		t.Fatalf("inactive = %v, want [u2]", inactive)
	}

	active, err := s.UsersActiveBetween(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("UsersActiveBetween: %v", err)
	}
	if len(active) != 1 || active[0].ID != "u1" {
		t.Fatalf("active = %v, want [u1]", active)
	}

	later := now.Add(time.Hour)
	if err := s.TouchUserActivity(ctx, "u2", later); err != nil {
		t.Fatalf("TouchUserActivity: %v", err)
	}
	u, _ = s.User(ctx, "u2")
	if !u.LastActiveAt.Equal(later) {
		t.Fatalf("lastActiveAt = %v, want %v", u.LastActiveAt, later)
	}
}

func TestGoalQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	seedGoal(t, s, Goal{ID: "due", UserID: "u1", Title: "due soon", Status: GoalActive, Deadline: now.Add(6 * time.Hour)})
	seedGoal(t, s, Goal{ID: "far", UserID: "u1", Title: "far off", Status: GoalActive, Deadline: now.Add(72 * time.Hour)})
	seedGoal(t, s, Goal{ID: "done", UserID: "u1", Title: "finished", Status: GoalCompleted, Deadline: now.Add(6 * time.Hour), CompletedAt: now.Add(-time.Hour)})
	seedGoal(t, s, Goal{ID: "old", UserID: "u1", Title: "archived", Status: GoalArchived})

	due, err := s.GoalsDueBetween(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("GoalsDueBetween: %v", err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		t.Fatalf("due = %v, want [due]", due)
	}

	n, err := s.OpenGoalCount(ctx, "u1")
	if err != nil {
		t.Fatalf("OpenGoalCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("open goals = %d, want 2", n)
	}

	goals, err := s.GoalsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GoalsByUser: %v", err)
	}
	// Archived goals are excluded.
	if len(goals) != 3 {
		t.Fatalf("goals = %d, want 3", len(goals))
	}
}

func TestSessionQueriesAndRetention(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	seedSession(t, s, Session{ID: "recent", UserID: "u1", Kind: SessionFocus, StartedAt: now.Add(-time.Hour), EndedAt: now.Add(-35 * time.Minute), Completed: true})
	seedSession(t, s, Session{ID: "old", UserID: "u1", Kind: SessionFocus, StartedAt: now.Add(-100 * 24 * time.Hour), EndedAt: now.Add(-100*24*time.Hour + 25*time.Minute)})
	seedSession(t, s, Session{ID: "ancient", UserID: "u1", Kind: SessionBreak, StartedAt: now.Add(-400 * 24 * time.Hour), Archived: true})

	sessions, err := s.SessionsByUser(ctx, "u1", now.Add(-2*time.Hour), now)
	if err != nil {
		t.Fatalf("SessionsByUser: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "recent" {
		t.Fatalf("sessions = %v, want [recent]", sessions)
	}
	if got := sessions[0].Duration(); got != 25*time.Minute {
		t.Fatalf("duration = %v, want 25m", got)
	}

	archived, err := s.ArchiveSessionsBefore(ctx, now.Add(-90*24*time.Hour))
	if err != nil {
		t.Fatalf("ArchiveSessionsBefore: %v", err)
	}
	if archived != 1 {
		t.Fatalf("archived = %d, want 1", archived)
	}

	purged, err := s.PurgeArchivedSessionsBefore(ctx, now.Add(-365*24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeArchivedSessionsBefore: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
}

func TestPushSubscriptionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.PushSubscription(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	sub := PushSubscription{UserID: "u1", Endpoint: "https://push.example/a", CreatedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}
	if err := s.SavePushSubscription(ctx, sub); err != nil {
		t.Fatalf("SavePushSubscription: %v", err)
	}
	got, err := s.PushSubscription(ctx, "u1")
	if err != nil {
		t.Fatalf("PushSubscription: %v", err)
	}
	if got.Endpoint != sub.Endpoint || !got.CreatedAt.Equal(sub.CreatedAt) {
		t.Fatalf("sub = %+v", got)
	}

	// Upsert replaces the endpoint.
	sub.Endpoint = "https://push.example/b"
	if err := s.SavePushSubscription(ctx, sub); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ = s.PushSubscription(ctx, "u1")
	if got.Endpoint != "https://push.example/b" {
		t.Fatalf("endpoint = %q after upsert", got.Endpoint)
	}

	if err := s.DeletePushSubscription(ctx, "u1"); err != nil {
		t.Fatalf("DeletePushSubscription: %v", err)
	}
	if _, err := s.PushSubscription(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v after delete, want ErrNotFound", err)
	}
}

func TestEmailPreferences(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// No stored preference means allowed.
	allowed, err := s.EmailAllowed(ctx, "u1", "weekly_review")
	if err != nil || !allowed {
		t.Fatalf("got (%v, %v), want allowed by default", allowed, err)
	}

	if err := s.SetEmailPreference(ctx, "u1", "weekly_review", false); err != nil {
		t.Fatalf("SetEmailPreference: %v", err)
	}
	allowed, _ = s.EmailAllowed(ctx, "u1", "weekly_review")
	if allowed {
		t.Fatal("expected denied after opt-out")
	}
	// Other types are unaffected.
	allowed, _ = s.EmailAllowed(ctx, "u1", "monthly_report")
	if !allowed {
		t.Fatal("opt-out leaked to another type")
	}

	if err := s.SetEmailPreference(ctx, "u1", "weekly_review", true); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	allowed, _ = s.EmailAllowed(ctx, "u1", "weekly_review")
	if !allowed {
		t.Fatal("expected allowed after opt-in")
	}
}
