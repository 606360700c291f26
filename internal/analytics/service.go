package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"focusd/internal/cache"
	"focusd/internal/clock"
	"focusd/internal/storage"
)

// Reader is the slice of the data store analytics needs.
type Reader interface {
	SessionsByUser(ctx context.Context, userID string, from, to time.Time) ([]storage.Session, error)
	GoalsByUser(ctx context.Context, userID string) ([]storage.Goal, error)
}

const (
	dashboardTTL = 5 * time.Minute
	statsTTL     = 10 * time.Minute
	reportTTL    = 15 * time.Minute
)

type Service struct {
	store Reader
	cache *cache.Cache
	clk   clock.Clock
	log   *slog.Logger
}

func New(store Reader, c *cache.Cache, clk clock.Clock, log *slog.Logger) *Service {
	return &Service{store: store, cache: c, clk: clk, log: log}
}

// Dashboard returns today's and this week's activity plus the combined
// score. Cached per user; a store error surfaces to the caller uncached.
func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	key := "dashboard:" + userID
	return cache.GetOrCompute(s.cache, key, dashboardTTL, func() (Dashboard, error) {
		now := s.clk.Now()
		today, err := s.computeTimerStats(ctx, userID, PeriodDaily, now)
		if err != nil {
			return Dashboard{}, err
		}
		week, err := s.computeTimerStats(ctx, userID, PeriodWeekly, now)
		if err != nil {
			return Dashboard{}, err
		}
		goals, err := s.computeGoalStats(ctx, userID, PeriodWeekly, now)
		if err != nil {
			return Dashboard{}, err
		}
		return Dashboard{
			GeneratedAt: now,
			Today:       today,
			Week:        week,
			Goals:       goals,
			Score:       ProductivityScore(week, goals),
		}, nil
	})
}

func (s *Service) TimerStats(ctx context.Context, userID string, period Period) (TimerStats, error) {
	key := fmt.Sprintf("timer:%s:%s", userID, period)
	return cache.GetOrCompute(s.cache, key, statsTTL, func() (TimerStats, error) {
		return s.computeTimerStats(ctx, userID, period, s.clk.Now())
	})
}

func (s *Service) GoalStats(ctx context.Context, userID string, period Period) (GoalStats, error) {
	key := fmt.Sprintf("goals:%s:%s", userID, period)
	return cache.GetOrCompute(s.cache, key, statsTTL, func() (GoalStats, error) {
		return s.computeGoalStats(ctx, userID, period, s.clk.Now())
	})
}

// UserReport builds the full per-period view: stats, score, trends against
// the previous period, and anomalies over the current window.
func (s *Service) UserReport(ctx context.Context, userID string, period Period) (Report, error) {
	key := fmt.Sprintf("report:%s:%s", userID, period)
	return cache.GetOrCompute(s.cache, key, reportTTL, func() (Report, error) {
		now := s.clk.Now()

		timer, err := s.computeTimerStats(ctx, userID, period, now)
		if err != nil {
			return Report{}, err
		}
		goals, err := s.computeGoalStats(ctx, userID, period, now)
		if err != nil {
			return Report{}, err
		}

		pFrom, pTo := period.PreviousRange(now)
		prevSessions, err := s.store.SessionsByUser(ctx, userID, pFrom, pTo)
		if err != nil {
			return Report{}, err
		}
		prevTimer := aggregateSessions(prevSessions, period)
		allGoals, err := s.store.GoalsByUser(ctx, userID)
		if err != nil {
			return Report{}, err
		}
		prevGoals := aggregateGoals(allGoals, period, pFrom, pTo)

		fields := append(timerTrendFields(prevTimer, timer), goalTrendFields(prevGoals, goals)...)

		cFrom, cTo := period.Range(now)
		curSessions, err := s.store.SessionsByUser(ctx, userID, cFrom, cTo)
		if err != nil {
			return Report{}, err
		}

		return Report{
			UserID:      userID,
			Period:      period,
			GeneratedAt: now,
			Timer:       timer,
			Goals:       goals,
			Score:       ProductivityScore(timer, goals),
			Trends:      detectTrends(fields),
			Anomalies:   detectAnomalies(curSessions),
		}, nil
	})
}

func (s *Service) computeTimerStats(ctx context.Context, userID string, period Period, now time.Time) (TimerStats, error) {
	from, to := period.Range(now)
	sessions, err := s.store.SessionsByUser(ctx, userID, from, to)
	if err != nil {
		return TimerStats{}, fmt.Errorf("load sessions: %w", err)
	}
	return aggregateSessions(sessions, period), nil
}

func (s *Service) computeGoalStats(ctx context.Context, userID string, period Period, now time.Time) (GoalStats, error) {
	goals, err := s.store.GoalsByUser(ctx, userID)
	if err != nil {
		return GoalStats{}, fmt.Errorf("load goals: %w", err)
	}
	from, to := period.Range(now)
	st := aggregateGoals(goals, period, from, to)
	// Overdue is judged against now, not the window edge.
	st.Overdue = 0
	for _, g := range goals {
		if g.Overdue(now) {
			st.Overdue++
		}
	}
	return st, nil
}

func aggregateSessions(sessions []storage.Session, period Period) TimerStats {
	st := TimerStats{Period: period}
	days := map[string]struct{}{}
	for _, sess := range sessions {
		st.Sessions++
		days[sess.StartedAt.Format("2006-01-02")] = struct{}{}
		min := sess.Duration().Minutes()
		switch sess.Kind {
		case storage.SessionFocus:
			st.FocusSessions++
			st.FocusMinutes += min
		case storage.SessionBreak:
			st.BreakMinutes += min
		}
		if sess.Completed {
			st.CompletedSessions++
		}
	}
	st.ActiveDays = len(days)
	if st.Sessions > 0 {
		st.CompletionRate = float64(st.CompletedSessions) / float64(st.Sessions)
	}
	if st.FocusSessions > 0 {
		st.AvgFocusMinutes = st.FocusMinutes / float64(st.FocusSessions)
	}
	return st
}

// aggregateGoals counts goals relevant to the window: active goals always
// count toward the total; completed goals count when completed inside the
// window.
func aggregateGoals(goals []storage.Goal, period Period, from, to time.Time) GoalStats {
	st := GoalStats{Period: period}
	for _, g := range goals {
		switch g.Status {
		case storage.GoalActive:
			st.Total++
		case storage.GoalCompleted:
			if !g.CompletedAt.Before(from) && g.CompletedAt.Before(to) {
				st.Total++
				st.Completed++
			}
		}
	}
	if st.Total > 0 {
		st.CompletionRate = float64(st.Completed) / float64(st.Total)
	}
	return st
}
