// Package analytics derives reporting aggregates from stored sessions and
// goals: per-period timer and goal stats, a bounded productivity score,
// period-over-period trends, and simple anomaly heuristics. Every query goes
// through the aggregation cache.
package analytics

import (
	"fmt"
	"time"
)

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return Period(s), nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// span is the length of one period window. Months are treated as 30 days,
// which is fine for rolling comparisons.
func (p Period) span() time.Duration {
	switch p {
	case PeriodWeekly:
		return 7 * 24 * time.Hour
	case PeriodMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Range returns the current window [from, to) ending at now.
func (p Period) Range(now time.Time) (from, to time.Time) {
	return now.Add(-p.span()), now
}

// PreviousRange returns the window immediately before Range.
func (p Period) PreviousRange(now time.Time) (from, to time.Time) {
	return now.Add(-2 * p.span()), now.Add(-p.span())
}

// TimerStats aggregates pomodoro sessions within one period window.
type TimerStats struct {
	Period            Period  `json:"period"`
	Sessions          int     `json:"sessions"`
	FocusSessions     int     `json:"focusSessions"`
	CompletedSessions int     `json:"completedSessions"`
	FocusMinutes      float64 `json:"focusMinutes"`
	BreakMinutes      float64 `json:"breakMinutes"`
	ActiveDays        int     `json:"activeDays"`
	CompletionRate    float64 `json:"completionRate"` // completed / total, 0 when no sessions
	AvgFocusMinutes   float64 `json:"avgFocusMinutes"`
}

// GoalStats aggregates goals touched within one period window.
type GoalStats struct {
	Period         Period  `json:"period"`
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Overdue        int     `json:"overdue"`
	CompletionRate float64 `json:"completionRate"`
}

// Dashboard is the landing-page aggregate: today's and this week's timer
// activity plus the weekly goal view and the combined score.
type Dashboard struct {
	GeneratedAt time.Time  `json:"generatedAt"`
	Today       TimerStats `json:"today"`
	Week        TimerStats `json:"week"`
	Goals       GoalStats  `json:"goals"`
	Score       float64    `json:"score"`
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Trend is the period-over-period change of one numeric field.
type Trend struct {
	Field       string    `json:"field"`
	Previous    float64   `json:"previous"`
	Current     float64   `json:"current"`
	ChangePct   float64   `json:"changePct"` // (C-P)/P
	Direction   Direction `json:"direction"`
	Notable     bool      `json:"notable"`     // |change| > 0.20, strict
	Significant bool      `json:"significant"` // |change| > 0.50, strict
}

// Anomaly flags a metric outside its expected bounds.
type Anomaly struct {
	Kind    string  `json:"kind"`
	Value   float64 `json:"value"`
	Low     float64 `json:"low"`
	High    float64 `json:"high"`
	Message string  `json:"message"`
}

// Report is the full per-user, per-period view.
type Report struct {
	UserID      string     `json:"userId"`
	Period      Period     `json:"period"`
	GeneratedAt time.Time  `json:"generatedAt"`
	Timer       TimerStats `json:"timer"`
	Goals       GoalStats  `json:"goals"`
	Score       float64    `json:"score"`
	Trends      []Trend    `json:"trends"`
	Anomalies   []Anomaly  `json:"anomalies"`
}
