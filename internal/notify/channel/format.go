// Package channel holds the concrete delivery channels consumed by the
// notify pipeline: an in-process realtime hub, an HTTP push sender, an SMTP
// email sender, and an optional telegram sender.
package channel

import (
	"fmt"

	"focusd/internal/notify"
)

// Format renders the human-readable title and body for an envelope. All
// channels share the same rendering so a notification reads the same
// everywhere.
func Format(env notify.Envelope) (title, body string) {
	switch p := env.Payload.(type) {
	case notify.GoalDeadlinePayload:
		return "Goal deadline approaching",
			fmt.Sprintf("%q is due %s.", p.Title, p.Deadline.Format("Mon, 02 Jan 15:04"))
	case notify.DailyCheckPayload:
		if p.OpenGoals == 1 {
			return "Daily check-in", "You have 1 open goal today."
		}
		return "Daily check-in", fmt.Sprintf("You have %d open goals today.", p.OpenGoals)
	case notify.WeeklyReviewPayload:
		return "Your week in review",
			fmt.Sprintf("%d minutes focused, %d goals completed. Productivity score: %.0f.",
				p.FocusMinutes, p.CompletedGoals, p.Score)
	case notify.InactivityPayload:
		return "We miss you",
			fmt.Sprintf("No activity since %s. Ready to pick up where you left off?",
				p.LastActiveAt.Format("Jan 2"))
	case notify.BreakReminderPayload:
		return "Time for a break",
			fmt.Sprintf("You have been focused for %d minutes. A short break keeps you sharp.",
				int(p.FocusedFor.Minutes()))
	case notify.MonthlyReportPayload:
		return fmt.Sprintf("Monthly report: %s", p.Period),
			fmt.Sprintf("Your productivity score for %s was %.0f.", p.Period, p.Score)
	case notify.SystemPayload:
		return "System notice", p.Message
	default:
		return string(env.Type), ""
	}
}
