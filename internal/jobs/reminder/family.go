// Package reminder builds the "reminder" job family: the user-facing
// scheduled notifications (deadlines, check-ins, reviews, inactivity nudges,
// break reminders, monthly reports).
package reminder

import (
	"context"
	"log/slog"
	"time"

	"focusd/internal/analytics"
	"focusd/internal/clock"
	"focusd/internal/eventbus"
	"focusd/internal/notify"
	"focusd/internal/scheduler"
	"focusd/internal/storage"
)

const Family = "reminder"

// Notifier is the intake side of the delivery pipeline.
type Notifier interface {
	Enqueue(env notify.Envelope) error
}

// Reports is the slice of analytics the review handlers need.
type Reports interface {
	UserReport(ctx context.Context, userID string, period analytics.Period) (analytics.Report, error)
}

type Config struct {
	// InactiveAfter is how long without activity before the inactivity
	// nudge fires.
	InactiveAfter time.Duration
	// DeadlineWindow is how far ahead goalDeadlines looks.
	DeadlineWindow time.Duration
	// FocusStretch is the continuous focus time that triggers a break
	// reminder.
	FocusStretch time.Duration

	// ExtraChannels are appended to every envelope's channel set (telegram
	// when configured).
	ExtraChannels []notify.Channel
}

func (c Config) withDefaults() Config {
	if c.InactiveAfter <= 0 {
		c.InactiveAfter = 7 * 24 * time.Hour
	}
	if c.DeadlineWindow <= 0 {
		c.DeadlineWindow = 24 * time.Hour
	}
	if c.FocusStretch <= 0 {
		c.FocusStretch = 50 * time.Minute
	}
	return c
}

type handlers struct {
	cfg      Config
	store    storage.Store
	notifier Notifier
	reports  Reports
	clk      clock.Clock
	log      *slog.Logger
}

// NewRegistry builds the reminder family with its full schedule table.
func NewRegistry(cfg Config, tz string, store storage.Store, notifier Notifier, reports Reports, clk clock.Clock, log *slog.Logger, bus eventbus.Bus) (*scheduler.Registry, error) {
	cfg = cfg.withDefaults()
	h := &handlers{cfg: cfg, store: store, notifier: notifier, reports: reports, clk: clk, log: log}

	r := scheduler.New(scheduler.Config{Family: Family, Timezone: tz}, log, clk, bus)
	tasks := []scheduler.Task{
		{Name: "goalDeadlines", Spec: "0 9 * * *", Handler: h.goalDeadlines, Enabled: true},
		{Name: "dailyCheck", Spec: "0 18 * * *", Handler: h.dailyCheck, Enabled: true},
		{Name: "weeklyReview", Spec: "0 19 * * 0", Handler: h.weeklyReview, Enabled: true},
		{Name: "inactiveUsers", Spec: "0 10 * * *", Handler: h.inactiveUsers, Enabled: true},
		{Name: "breakReminders", Spec: "*/25 9-17 * * 1-5", Handler: h.breakReminders, Enabled: true},
		{Name: "monthlyReport", Spec: "0 9 1 * *", Handler: h.monthlyReport, Enabled: true},
	}
	for _, t := range tasks {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (h *handlers) channels(base ...notify.Channel) []notify.Channel {
	return append(base, h.cfg.ExtraChannels...)
}

// goalDeadlines notifies owners of goals due within the deadline window.
func (h *handlers) goalDeadlines(ctx context.Context) error {
	now := h.clk.Now()
	goals, err := h.store.GoalsDueBetween(ctx, now, now.Add(h.cfg.DeadlineWindow))
	if err != nil {
		return err
	}
	for _, g := range goals {
		env := notify.NewEnvelope(g.UserID, notify.GoalDeadlinePayload{
			GoalID:   g.ID,
			Title:    g.Title,
			Deadline: g.Deadline,
		}, h.channels(notify.ChannelRealtime, notify.ChannelPush, notify.ChannelEmail)...)
		if err := h.notifier.Enqueue(env); err != nil {
			h.log.Warn("enqueue failed", slog.String("task", "goalDeadlines"), slog.Any("err", err))
		}
	}
	h.log.Debug("goal deadline sweep", slog.Int("due", len(goals)))
	return nil
}

// dailyCheck reminds users with open goals.
func (h *handlers) dailyCheck(ctx context.Context) error {
	users, err := h.store.Users(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		n, err := h.store.OpenGoalCount(ctx, u.ID)
		if err != nil {
			h.log.Warn("open goal count failed", slog.String("user", u.ID), slog.Any("err", err))
			continue
		}
		if n == 0 {
			continue
		}
		env := notify.NewEnvelope(u.ID, notify.DailyCheckPayload{OpenGoals: n},
			h.channels(notify.ChannelRealtime, notify.ChannelPush)...)
		if err := h.notifier.Enqueue(env); err != nil {
			h.log.Warn("enqueue failed", slog.String("task", "dailyCheck"), slog.Any("err", err))
		}
	}
	return nil
}

// weeklyReview sends each active user their week summary.
func (h *handlers) weeklyReview(ctx context.Context) error {
	now := h.clk.Now()
	users, err := h.store.UsersActiveBetween(ctx, now.Add(-7*24*time.Hour), now)
	if err != nil {
		return err
	}
	for _, u := range users {
		rep, err := h.reports.UserReport(ctx, u.ID, analytics.PeriodWeekly)
		if err != nil {
			h.log.Warn("weekly report failed", slog.String("user", u.ID), slog.Any("err", err))
			continue
		}
		env := notify.NewEnvelope(u.ID, notify.WeeklyReviewPayload{
			FocusMinutes:   int(rep.Timer.FocusMinutes),
			CompletedGoals: rep.Goals.Completed,
			Score:          rep.Score,
		}, h.channels(notify.ChannelEmail, notify.ChannelRealtime)...)
		if err := h.notifier.Enqueue(env); err != nil {
			h.log.Warn("enqueue failed", slog.String("task", "weeklyReview"), slog.Any("err", err))
		}
	}
	return nil
}

// inactiveUsers nudges users who have not been seen for the configured
// span.
func (h *handlers) inactiveUsers(ctx context.Context) error {
	now := h.clk.Now()
	users, err := h.store.UsersInactiveSince(ctx, now.Add(-h.cfg.InactiveAfter))
	if err != nil {
		return err
	}
	for _, u := range users {
		env := notify.NewEnvelope(u.ID, notify.InactivityPayload{LastActiveAt: u.LastActiveAt},
			h.channels(notify.ChannelEmail, notify.ChannelPush)...)
		if err := h.notifier.Enqueue(env); err != nil {
			h.log.Warn("enqueue failed", slog.String("task", "inactiveUsers"), slog.Any("err", err))
		}
	}
	h.log.Debug("inactivity sweep", slog.Int("users", len(users)))
	return nil
}

// breakReminders targets users currently active who have focused past the
// stretch threshold without a break.
func (h *handlers) breakReminders(ctx context.Context) error {
	now := h.clk.Now()
	users, err := h.store.UsersActiveBetween(ctx, now.Add(-25*time.Minute), now)
	if err != nil {
		return err
	}
	for _, u := range users {
		focused, err := h.focusedSince(ctx, u.ID, now)
		if err != nil {
			h.log.Warn("focus lookup failed", slog.String("user", u.ID), slog.Any("err", err))
			continue
		}
		if focused < h.cfg.FocusStretch {
			continue
		}
		// Realtime only: a break reminder is worthless once the moment has
		// passed.
		env := notify.NewEnvelope(u.ID, notify.BreakReminderPayload{FocusedFor: focused},
			notify.ChannelRealtime)
		if err := h.notifier.Enqueue(env); err != nil {
			h.log.Warn("enqueue failed", slog.String("task", "breakReminders"), slog.Any("err", err))
		}
	}
	return nil
}

// focusedSince sums focus time since the user's most recent break.
func (h *handlers) focusedSince(ctx context.Context, userID string, now time.Time) (time.Duration, error) {
	sessions, err := h.store.SessionsByUser(ctx, userID, now.Add(-4*time.Hour), now)
	if err != nil {
		return 0, err
	}
	var focused time.Duration
	for _, s := range sessions {
		switch s.Kind {
		case storage.SessionBreak:
			focused = 0
		case storage.SessionFocus:
			if s.EndedAt.IsZero() {
				focused += now.Sub(s.StartedAt)
			} else {
				focused += s.Duration()
			}
		}
	}
	return focused, nil
}

// monthlyReport mails each active user their month summary.
func (h *handlers) monthlyReport(ctx context.Context) error {
	now := h.clk.Now()
	users, err := h.store.UsersActiveBetween(ctx, now.Add(-30*24*time.Hour), now)
	if err != nil {
		return err
	}
	period := now.AddDate(0, -1, 0).Format("January 2006")
	for _, u := range users {
		rep, err := h.reports.UserReport(ctx, u.ID, analytics.PeriodMonthly)
		if err != nil {
			h.log.Warn("monthly report failed", slog.String("user", u.ID), slog.Any("err", err))
			continue
		}
		env := notify.NewEnvelope(u.ID, notify.MonthlyReportPayload{
			Period: period,
			Score:  rep.Score,
		}, h.channels(notify.ChannelEmail)...)
		if err := h.notifier.Enqueue(env); err != nil {
			h.log.Warn("enqueue failed", slog.String("task", "monthlyReport"), slog.Any("err", err))
		}
	}
	return nil
}
