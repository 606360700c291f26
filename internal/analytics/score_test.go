package analytics

import "testing"

func TestScoreStaysWithinBounds(t *testing.T) {
	cases := []struct {
		name  string
		timer TimerStats
		goals GoalStats
	}{
		{"no activity", TimerStats{Period: PeriodWeekly}, GoalStats{Period: PeriodWeekly}},
		{
			"extreme activity",
			TimerStats{
				Period:            PeriodWeekly,
				Sessions:          10000,
				FocusSessions:     10000,
				CompletedSessions: 10000,
				FocusMinutes:      1e6,
				ActiveDays:        7,
				CompletionRate:    1,
			},
			GoalStats{Period: PeriodWeekly, Total: 500, Completed: 500, CompletionRate: 1},
		},
		{
			"all goals overdue",
			TimerStats{Period: PeriodWeekly, Sessions: 1, FocusSessions: 1, FocusMinutes: 25},
			GoalStats{Period: PeriodWeekly, Total: 20, Overdue: 20},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := ProductivityScore(tc.timer, tc.goals)
			if s < 0 || s > 100 {
				t.Fatalf("score = %f, want within [0,100]", s)
			}
		})
	}
}

func TestScoreOrdering(t *testing.T) {
	busy := TimerStats{
		Period: PeriodWeekly, Sessions: 20, FocusSessions: 20,
		CompletedSessions: 18, FocusMinutes: 500, ActiveDays: 6, CompletionRate: 0.9,
	}
	idle := TimerStats{Period: PeriodWeekly, Sessions: 1, FocusSessions: 1, FocusMinutes: 5, ActiveDays: 1}
	goals := GoalStats{Period: PeriodWeekly, Total: 5, Completed: 4, CompletionRate: 0.8}

	if ProductivityScore(busy, goals) <= ProductivityScore(idle, goals) {
		t.Fatal("busier week should not score lower")
	}
}

func TestZeroSessionsZeroTimerScore(t *testing.T) {
	if s := timerScore(TimerStats{Period: PeriodDaily}); s != 0 {
		t.Fatalf("timer score = %f, want 0 with no sessions", s)
	}
	if s := goalScore(GoalStats{Period: PeriodDaily}); s != 0 {
		t.Fatalf("goal score = %f, want 0 with no goals", s)
	}
}
