package analytics

import (
	"fmt"

	"focusd/internal/storage"
)

// Anomaly bounds. Plain bound checks on averages, deliberately not a
// statistical model.
const (
	minAvgSessionMinutes = 5.0
	maxAvgSessionMinutes = 120.0
	minBreakStartHour    = 6.0
	maxBreakStartHour    = 22.0
)

// detectAnomalies flags an average focus-session length outside
// [5min,120min] and an average break start hour outside [06:00,22:00].
func detectAnomalies(sessions []storage.Session) []Anomaly {
	var (
		focusMinutes float64
		focusCount   int
		breakHours   float64
		breakCount   int
	)
	for _, s := range sessions {
		switch s.Kind {
		case storage.SessionFocus:
			if d := s.Duration(); d > 0 {
				focusMinutes += d.Minutes()
				focusCount++
			}
		case storage.SessionBreak:
			h := s.StartedAt
			breakHours += float64(h.Hour()) + float64(h.Minute())/60
			breakCount++
		}
	}

	var out []Anomaly
	if focusCount > 0 {
		avg := focusMinutes / float64(focusCount)
		if avg < minAvgSessionMinutes || avg > maxAvgSessionMinutes {
			out = append(out, Anomaly{
				Kind:    "sessionLength",
				Value:   avg,
				Low:     minAvgSessionMinutes,
				High:    maxAvgSessionMinutes,
				Message: fmt.Sprintf("average focus session of %.1f minutes is outside the expected %.0f-%.0f minute range", avg, minAvgSessionMinutes, maxAvgSessionMinutes),
			})
		}
	}
	if breakCount > 0 {
		avg := breakHours / float64(breakCount)
		if avg < minBreakStartHour || avg > maxBreakStartHour {
			out = append(out, Anomaly{
				Kind:    "breakStartHour",
				Value:   avg,
				Low:     minBreakStartHour,
				High:    maxBreakStartHour,
				Message: fmt.Sprintf("average break start hour of %.1f is outside the expected %02.0f:00-%02.0f:00 window", avg, minBreakStartHour, maxBreakStartHour),
			})
		}
	}
	return out
}
