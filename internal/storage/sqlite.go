package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// Open initializes the sqlite-backed store, creating the schema if needed.
func Open(cfg Config, log *slog.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const userCols = "id, email, telegram_chat_id, last_active_at"

func (s *sqliteStore) Users(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userCols+" FROM users")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *sqliteStore) User(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userCols+" FROM users WHERE id = ?", id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *sqliteStore) UsersInactiveSince(ctx context.Context, cutoff time.Time) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userCols+" FROM users WHERE last_active_at != '' AND last_active_at < ?",
		fmtTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *sqliteStore) UsersActiveBetween(ctx context.Context, from, to time.Time) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userCols+" FROM users WHERE last_active_at >= ? AND last_active_at <= ?",
		fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func (s *sqliteStore) TouchUserActivity(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET last_active_at = ? WHERE id = ?", fmtTime(at), id)
	return err
}

const goalCols = "id, user_id, title, deadline, status, completed_at"

func (s *sqliteStore) GoalsByUser(ctx context.Context, userID string) ([]Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+goalCols+" FROM goals WHERE user_id = ? AND status != ?", userID, string(GoalArchived))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGoals(rows)
}

func (s *sqliteStore) GoalsDueBetween(ctx context.Context, from, to time.Time) ([]Goal, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+goalCols+" FROM goals WHERE status = ? AND deadline != '' AND deadline >= ? AND deadline <= ?",
		string(GoalActive), fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGoals(rows)
}

func (s *sqliteStore) OpenGoalCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM goals WHERE user_id = ? AND status = ?", userID, string(GoalActive)).Scan(&n)
	return n, err
}

func (s *sqliteStore) SessionsByUser(ctx context.Context, userID string, from, to time.Time) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, kind, started_at, ended_at, completed, archived
		 FROM sessions WHERE user_id = ? AND archived = 0 AND started_at >= ? AND started_at <= ?
		 ORDER BY started_at`,
		userID, fmtTime(from), fmtTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess                Session
			started, ended      string
			completed, archived int
		)
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Kind, &started, &ended, &completed, &archived); err != nil {
			return nil, err
		}
		sess.StartedAt = parseTime(started)
		sess.EndedAt = parseTime(ended)
		sess.Completed = completed != 0
		sess.Archived = archived != 0
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PushSubscription(ctx context.Context, userID string) (PushSubscription, error) {
	var (
		sub     PushSubscription
		created string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, endpoint, created_at FROM push_subscriptions WHERE user_id = ?", userID).
		Scan(&sub.UserID, &sub.Endpoint, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return PushSubscription{}, ErrNotFound
	}
	if err != nil {
		return PushSubscription{}, err
	}
	sub.CreatedAt = parseTime(created)
	return sub, nil
}

func (s *sqliteStore) SavePushSubscription(ctx context.Context, sub PushSubscription) error {
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions(user_id, endpoint, created_at) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET endpoint=excluded.endpoint, created_at=excluded.created_at`,
		sub.UserID, sub.Endpoint, fmtTime(sub.CreatedAt))
	return err
}

func (s *sqliteStore) DeletePushSubscription(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE user_id = ?", userID)
	return err
}

func (s *sqliteStore) EmailAllowed(ctx context.Context, userID, notifType string) (bool, error) {
	var allowed int
	err := s.db.QueryRowContext(ctx,
		"SELECT allowed FROM email_prefs WHERE user_id = ? AND notif_type = ?", userID, notifType).
		Scan(&allowed)
	if errors.Is(err, sql.ErrNoRows) {
		// No explicit preference means allowed.
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return allowed != 0, nil
}

func (s *sqliteStore) SetEmailPreference(ctx context.Context, userID, notifType string, allowed bool) error {
	v := 0
	if allowed {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO email_prefs(user_id, notif_type, allowed) VALUES(?,?,?)
		 ON CONFLICT(user_id, notif_type) DO UPDATE SET allowed=excluded.allowed`,
		userID, notifType, v)
	return err
}

func (s *sqliteStore) ArchiveSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET archived = 1 WHERE archived = 0 AND started_at < ?", fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteStore) PurgeArchivedSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE archived = 1 AND started_at < ?", fmtTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// timeLayout is fixed-width UTC so the string comparisons in the range
// queries order correctly even with sub-second precision.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(r rowScanner) (User, error) {
	var (
		u    User
		last string
	)
	if err := r.Scan(&u.ID, &u.Email, &u.TelegramChatID, &last); err != nil {
		return User{}, err
	}
	u.LastActiveAt = parseTime(last)
	return u, nil
}

func scanUsers(rows *sql.Rows) ([]User, error) {
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanGoals(rows *sql.Rows) ([]Goal, error) {
	var out []Goal
	for rows.Next() {
		var (
			g                   Goal
			deadline, completed string
		)
		if err := rows.Scan(&g.ID, &g.UserID, &g.Title, &deadline, &g.Status, &completed); err != nil {
			return nil, err
		}
		g.Deadline = parseTime(deadline)
		g.CompletedAt = parseTime(completed)
		out = append(out, g)
	}
	return out, rows.Err()
}
