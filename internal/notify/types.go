package notify

import (
	"context"
	"errors"
	"time"

	"focusd/internal/storage"
)

// ErrEndpointGone is the permanent push failure: the stored subscription is
// dead and must be removed so future pushes are skipped until resubscribe.
var ErrEndpointGone = errors.New("push endpoint gone")

type Channel string

const (
	ChannelRealtime Channel = "realtime"
	ChannelPush     Channel = "push"
	ChannelEmail    Channel = "email"

	// ChannelTelegram is an optional extra channel; envelopes only request
	// it when the telegram sender is configured.
	ChannelTelegram Channel = "telegram"
)

type Type string

const (
	TypeGoalDeadline  Type = "goal_deadline"
	TypeDailyCheck    Type = "daily_check"
	TypeWeeklyReview  Type = "weekly_review"
	TypeInactivity    Type = "inactivity"
	TypeBreakReminder Type = "break_reminder"
	TypeMonthlyReport Type = "monthly_report"
	TypeSystem        Type = "system"
)

// Payload is the tagged-union body of an envelope: each notification type
// carries its own variant.
type Payload interface {
	NotificationType() Type
}

type GoalDeadlinePayload struct {
	GoalID   string
	Title    string
	Deadline time.Time
}

func (GoalDeadlinePayload) NotificationType() Type { return TypeGoalDeadline }

type DailyCheckPayload struct {
	OpenGoals int
}

func (DailyCheckPayload) NotificationType() Type { return TypeDailyCheck }

type WeeklyReviewPayload struct {
	FocusMinutes   int
	CompletedGoals int
	Score          float64
}

func (WeeklyReviewPayload) NotificationType() Type { return TypeWeeklyReview }

type InactivityPayload struct {
	LastActiveAt time.Time
}

func (InactivityPayload) NotificationType() Type { return TypeInactivity }

type BreakReminderPayload struct {
	FocusedFor time.Duration
}

func (BreakReminderPayload) NotificationType() Type { return TypeBreakReminder }

type MonthlyReportPayload struct {
	Period string
	Score  float64
}

func (MonthlyReportPayload) NotificationType() Type { return TypeMonthlyReport }

type SystemPayload struct {
	Message string
}

func (SystemPayload) NotificationType() Type { return TypeSystem }

// Envelope is one notification unit. It is consumed exactly once by the
// drain loop and never retried afterwards (at-most-once by design).
type Envelope struct {
	ID       string
	UserID   string
	Type     Type
	Channels []Channel
	Payload  Payload
	QueuedAt time.Time
}

// NewEnvelope builds an envelope for userID; the type is derived from the
// payload variant. ID and QueuedAt are stamped at enqueue time.
func NewEnvelope(userID string, payload Payload, channels ...Channel) Envelope {
	return Envelope{
		UserID:   userID,
		Type:     payload.NotificationType(),
		Channels: channels,
		Payload:  payload,
	}
}

// RealtimeBroadcaster delivers to users with an open live connection.
// Delivery to a disconnected user is dropped, not queued.
type RealtimeBroadcaster interface {
	Connected(userID string) bool
	Send(ctx context.Context, userID string, env Envelope) error
}

// PushSender delivers to a stored subscription endpoint. It returns
// ErrEndpointGone (possibly wrapped) on permanent failure.
type PushSender interface {
	Send(ctx context.Context, sub storage.PushSubscription, env Envelope) error
}

// EmailSender delivers by mail; recipient resolution is the sender's
// concern.
type EmailSender interface {
	Send(ctx context.Context, env Envelope) error
}

// Sender is the shape of optional extra channels (telegram).
type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

// SubscriptionStore is the slice of the data store the pipeline needs for
// the push channel.
type SubscriptionStore interface {
	PushSubscription(ctx context.Context, userID string) (storage.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, userID string) error
}

// PreferenceStore gates the email channel per user and notification type.
type PreferenceStore interface {
	EmailAllowed(ctx context.Context, userID, notifType string) (bool, error)
}

// DeliveryEvent is the bus payload for notification events.
type DeliveryEvent struct {
	EnvelopeID string
	UserID     string
	Type       Type
	Channel    Channel
	Error      string
}
