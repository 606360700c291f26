package analytics

const (
	notableThreshold     = 0.20
	significantThreshold = 0.50
)

// trendField pairs a field name with its previous and current values.
type trendField struct {
	name     string
	previous float64
	current  float64
}

// detectTrends computes Δ=(C-P)/P per field. Fields with P==0 are skipped
// (no baseline to compare against). Thresholds are strict: exactly 20% is
// not notable, exactly 50% is not significant.
func detectTrends(fields []trendField) []Trend {
	var out []Trend
	for _, f := range fields {
		if f.previous == 0 {
			continue
		}
		change := (f.current - f.previous) / f.previous
		abs := change
		if abs < 0 {
			abs = -abs
		}
		dir := DirectionDown
		if change > 0 {
			dir = DirectionUp
		}
		out = append(out, Trend{
			Field:       f.name,
			Previous:    f.previous,
			Current:     f.current,
			ChangePct:   change,
			Direction:   dir,
			Notable:     abs > notableThreshold,
			Significant: abs > significantThreshold,
		})
	}
	return out
}

// timerTrendFields lists the numeric timer fields compared across periods.
func timerTrendFields(prev, cur TimerStats) []trendField {
	return []trendField{
		{"sessions", float64(prev.Sessions), float64(cur.Sessions)},
		{"focusMinutes", prev.FocusMinutes, cur.FocusMinutes},
		{"completionRate", prev.CompletionRate, cur.CompletionRate},
		{"activeDays", float64(prev.ActiveDays), float64(cur.ActiveDays)},
	}
}

func goalTrendFields(prev, cur GoalStats) []trendField {
	return []trendField{
		{"goalsCompleted", float64(prev.Completed), float64(cur.Completed)},
		{"goalCompletionRate", prev.CompletionRate, cur.CompletionRate},
	}
}
