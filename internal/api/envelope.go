package api

import (
	"encoding/json"
	"fmt"
	"io"

	"focusd/internal/notify"
)

// envelopeRequest is the wire form of a notification: the payload variant
// is selected by the type field.
type envelopeRequest struct {
	UserID   string          `json:"userId"`
	Type     string          `json:"type"`
	Channels []string        `json:"channels"`
	Payload  json.RawMessage `json:"payload"`
}

func decodeEnvelope(r io.Reader) (notify.Envelope, error) {
	var req envelopeRequest
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return notify.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}

	payload, err := decodePayload(notify.Type(req.Type), req.Payload)
	if err != nil {
		return notify.Envelope{}, err
	}
	channels := make([]notify.Channel, 0, len(req.Channels))
	for _, c := range req.Channels {
		channels = append(channels, notify.Channel(c))
	}
	return notify.NewEnvelope(req.UserID, payload, channels...), nil
}

func decodePayload(t notify.Type, raw json.RawMessage) (notify.Payload, error) {
	var p notify.Payload
	switch t {
	case notify.TypeGoalDeadline:
		p = &notify.GoalDeadlinePayload{}
	case notify.TypeDailyCheck:
		p = &notify.DailyCheckPayload{}
	case notify.TypeWeeklyReview:
		p = &notify.WeeklyReviewPayload{}
	case notify.TypeInactivity:
		p = &notify.InactivityPayload{}
	case notify.TypeBreakReminder:
		p = &notify.BreakReminderPayload{}
	case notify.TypeMonthlyReport:
		p = &notify.MonthlyReportPayload{}
	case notify.TypeSystem:
		p = &notify.SystemPayload{}
	default:
		return nil, fmt.Errorf("unknown notification type %q", t)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
	}
	return deref(p), nil
}

// deref returns the value form so channel formatting can type-switch on
// the concrete structs.
func deref(p notify.Payload) notify.Payload {
	switch v := p.(type) {
	case *notify.GoalDeadlinePayload:
		return *v
	case *notify.DailyCheckPayload:
		return *v
	case *notify.WeeklyReviewPayload:
		return *v
	case *notify.InactivityPayload:
		return *v
	case *notify.BreakReminderPayload:
		return *v
	case *notify.MonthlyReportPayload:
		return *v
	case *notify.SystemPayload:
		return *v
	default:
		return p
	}
}
