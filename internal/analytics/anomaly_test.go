package analytics

import (
	"testing"
	"time"

	"focusd/internal/storage"
)

func focusSession(start time.Time, minutes int) storage.Session {
	return storage.Session{
		Kind:      storage.SessionFocus,
		StartedAt: start,
		EndedAt:   start.Add(time.Duration(minutes) * time.Minute),
		Completed: true,
	}
}

func breakSession(start time.Time) storage.Session {
	return storage.Session{
		Kind:      storage.SessionBreak,
		StartedAt: start,
		EndedAt:   start.Add(5 * time.Minute),
	}
}

func TestSessionLengthAnomaly(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		minutes []int
		flagged bool
	}{
		{"typical pomodoros", []int{25, 25, 30}, false},
		{"five minute average is in bounds", []int{5, 5}, false},
		{"too short", []int{2, 3, 2}, true},
		{"marathon sessions", []int{200, 180}, true},
		{"two hour average is in bounds", []int{120, 120}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sessions []storage.Session
			for i, m := range tc.minutes {
				sessions = append(sessions, focusSession(base.Add(time.Duration(i)*4*time.Hour), m))
			}
			got := detectAnomalies(sessions)
			found := false
			for _, a := range got {
				if a.Kind == "sessionLength" {
					found = true
				}
			}
			if found != tc.flagged {
				t.Fatalf("flagged = %v, want %v (anomalies %v)", found, tc.flagged, got)
			}
		})
	}
}

func TestBreakStartHourAnomaly(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		hours   []int
		flagged bool
	}{
		{"midday breaks", []int{10, 12, 15}, false},
		{"night owl", []int{1, 2, 3}, true},
		{"six in the morning is in bounds", []int{6, 6}, false},
		{"late evening past bounds", []int{23, 23}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sessions []storage.Session
			for i, h := range tc.hours {
				sessions = append(sessions, breakSession(day.AddDate(0, 0, i).Add(time.Duration(h)*time.Hour)))
			}
			got := detectAnomalies(sessions)
			found := false
			for _, a := range got {
				if a.Kind == "breakStartHour" {
					found = true
				}
			}
			if found != tc.flagged {
				t.Fatalf("flagged = %v, want %v (anomalies %v)", found, tc.flagged, got)
			}
		})
	}
}

func TestNoSessionsNoAnomalies(t *testing.T) {
	if got := detectAnomalies(nil); len(got) != 0 {
		t.Fatalf("anomalies = %v, want none", got)
	}
}
