package analytics

// Productivity score: a timer sub-score and a goal sub-score, each built
// from bounded contributions and clamped to [0,100], then averaged. The
// weights are illustrative aggregates, not a calibrated model.

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func capAt(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}

// timerScore rewards session volume, daily consistency, total focus time
// and completion rate. Each contribution is capped so no single metric can
// dominate.
func timerScore(t TimerStats) float64 {
	if t.Sessions == 0 {
		return 0
	}
	days := t.Period.span().Hours() / 24

	sessions := capAt(float64(t.FocusSessions)*3, 30)
	consistency := capAt(float64(t.ActiveDays)/days*25, 25)
	focus := capAt(t.FocusMinutes/10, 25)
	completion := t.CompletionRate * 20

	return clamp(sessions+consistency+focus+completion, 0, 100)
}

// goalScore is completion rate minus an overdue penalty plus a small bonus
// for having goals at all.
func goalScore(g GoalStats) float64 {
	if g.Total == 0 {
		return 0
	}
	completion := g.CompletionRate * 70
	penalty := float64(g.Overdue) / float64(g.Total) * 30
	bonus := capAt(float64(g.Total)*2, 30)

	return clamp(completion-penalty+bonus, 0, 100)
}

// ProductivityScore combines the sub-scores. Always within [0,100].
func ProductivityScore(t TimerStats, g GoalStats) float64 {
	return clamp((timerScore(t)+goalScore(g))/2, 0, 100)
}
