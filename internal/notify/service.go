// Package notify implements the notification queue and delivery pipeline:
// envelopes are enqueued by job handlers and request handlers, and a
// fixed-interval drain loop removes a bounded batch per tick and fans each
// envelope out to its requested channels.
//
// Delivery is fire-and-forget per channel: one channel failing never
// prevents the others from being attempted, and no envelope is retried once
// off the queue.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"focusd/internal/clock"
	"focusd/internal/eventbus"
	"focusd/internal/storage"
)

type Config struct {
	Enabled       bool
	DrainInterval time.Duration
	BatchSize     int
	RatePerSec    int
}

func (c Config) withDefaults() Config {
	if c.DrainInterval <= 0 {
		c.DrainInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	return c
}

// Senders bundles the delivery collaborators. Extra holds optional
// channels (telegram) keyed by channel name.
type Senders struct {
	Realtime RealtimeBroadcaster
	Push     PushSender
	Email    EmailSender
	Extra    map[Channel]Sender

	Subscriptions SubscriptionStore
	Preferences   PreferenceStore
}

type Stats struct {
	QueueLen  int
	Processed uint64
	Delivered uint64
	Dropped   uint64
	Failed    uint64
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	log     *slog.Logger
	clk     clock.Clock
	bus     eventbus.Bus
	senders Senders

	q queue

	stopCh   chan struct{}
	loopDone chan struct{}

	processed atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func New(cfg Config, senders Senders, log *slog.Logger, clk clock.Clock, bus eventbus.Bus) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
		clk:     clk,
		bus:     bus,
		senders: senders,
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply hot-reloads drain interval, batch size and rate limit. The loop
// picks the new interval up on its next tick.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

// Enqueue appends the envelope, stamping ID and QueuedAt. The queue is
// unbounded; backpressure comes from the bounded drain batch, not intake.
func (s *Service) Enqueue(env Envelope) error {
	if env.UserID == "" {
		return errors.New("envelope user id required")
	}
	if env.Payload == nil {
		return errors.New("envelope payload required")
	}
	if len(env.Channels) == 0 {
		return errors.New("envelope needs at least one channel")
	}
	if env.Type == "" {
		env.Type = env.Payload.NotificationType()
	}
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	env.QueuedAt = s.clk.Now()

	s.q.push(env)
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.NotifyQueued,
			Data: DeliveryEvent{EnvelopeID: env.ID, UserID: env.UserID, Type: env.Type},
		})
	}
	return nil
}

// Start launches the drain loop. A second Start is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	stopCh := s.stopCh
	done := s.loopDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in drain loop", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			}
		}()
		for {
			s.mu.Lock()
			interval := s.cfg.DrainInterval
			s.mu.Unlock()

			t := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-stopCh:
				t.Stop()
				return
			case <-t.C:
				s.DrainTick(ctx)
			}
		}
	}()
	s.log.Info("delivery pipeline started",
		slog.Duration("interval", s.cfg.DrainInterval), slog.Int("batch", s.cfg.BatchSize))
}

// Stop halts the drain loop. Envelopes still queued stay queued; the tick
// in progress finishes its batch.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	stopCh := s.stopCh
	done := s.loopDone
	s.stopCh = nil
	s.loopDone = nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("delivery pipeline stopped", slog.Int("queued", s.q.len()))
}

// DrainTick processes one bounded batch in enqueue order. Exported so admin
// triggers and tests can force a tick.
func (s *Service) DrainTick(ctx context.Context) int {
	s.mu.Lock()
	batch := s.cfg.BatchSize
	s.mu.Unlock()

	envs := s.q.drain(batch)
	for _, env := range envs {
		s.process(ctx, env)
	}
	return len(envs)
}

func (s *Service) Statistics() Stats {
	return Stats{
		QueueLen:  s.q.len(),
		Processed: s.processed.Load(),
		Delivered: s.delivered.Load(),
		Dropped:   s.dropped.Load(),
		Failed:    s.failed.Load(),
	}
}

// process attempts every requested channel for one envelope. Channel
// failures are isolated from each other.
func (s *Service) process(ctx context.Context, env Envelope) {
	s.processed.Add(1)
	for _, ch := range env.Channels {
		s.deliver(ctx, ch, env)
	}
}

func (s *Service) deliver(ctx context.Context, ch Channel, env Envelope) {
	var err error
	switch ch {
	case ChannelRealtime:
		err = s.deliverRealtime(ctx, env)
	case ChannelPush:
		err = s.deliverPush(ctx, env)
	case ChannelEmail:
		err = s.deliverEmail(ctx, env)
	default:
		err = s.deliverExtra(ctx, ch, env)
	}
	if err != nil {
		s.failed.Add(1)
		s.log.Warn("channel delivery failed",
			slog.String("channel", string(ch)),
			slog.String("envelope", env.ID),
			slog.String("user", env.UserID),
			slog.String("type", string(env.Type)),
			slog.Any("err", err))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: eventbus.NotifyChannelFail,
				Data: DeliveryEvent{EnvelopeID: env.ID, UserID: env.UserID, Type: env.Type, Channel: ch, Error: err.Error()},
			})
		}
	}
}

func (s *Service) deliverRealtime(ctx context.Context, env Envelope) error {
	rt := s.senders.Realtime
	if rt == nil {
		return errors.New("realtime channel not configured")
	}
	if !rt.Connected(env.UserID) {
		// At-most-once: no live connection means the notification is gone.
		s.drop(env, ChannelRealtime, "user not connected")
		return nil
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := rt.Send(ctx, env.UserID, env); err != nil {
		return err
	}
	s.sent(env, ChannelRealtime)
	return nil
}

func (s *Service) deliverPush(ctx context.Context, env Envelope) error {
	ps := s.senders.Push
	subs := s.senders.Subscriptions
	if ps == nil || subs == nil {
		return errors.New("push channel not configured")
	}
	sub, err := subs.PushSubscription(ctx, env.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		s.drop(env, ChannelPush, "no subscription")
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	err = ps.Send(ctx, sub, env)
	if err == nil {
		s.sent(env, ChannelPush)
		return nil
	}
	if errors.Is(err, ErrEndpointGone) {
		// Permanent: remove the subscription so future pushes are skipped
		// until the user resubscribes.
		if derr := subs.DeletePushSubscription(ctx, env.UserID); derr != nil {
			s.log.Warn("failed to remove dead push subscription",
				slog.String("user", env.UserID), slog.Any("err", derr))
		} else {
			s.log.Info("push subscription removed (endpoint gone)", slog.String("user", env.UserID))
		}
	}
	return err
}

func (s *Service) deliverEmail(ctx context.Context, env Envelope) error {
	es := s.senders.Email
	prefs := s.senders.Preferences
	if es == nil || prefs == nil {
		return errors.New("email channel not configured")
	}
	allowed, err := prefs.EmailAllowed(ctx, env.UserID, string(env.Type))
	if err != nil {
		return err
	}
	if !allowed {
		// Preference says no: silent skip, not an error.
		s.drop(env, ChannelEmail, "preference disallows type")
		return nil
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := es.Send(ctx, env); err != nil {
		return err
	}
	s.sent(env, ChannelEmail)
	return nil
}

func (s *Service) deliverExtra(ctx context.Context, ch Channel, env Envelope) error {
	sender, ok := s.senders.Extra[ch]
	if !ok {
		return errors.New("unknown channel: " + string(ch))
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := sender.Send(ctx, env); err != nil {
		return err
	}
	s.sent(env, ch)
	return nil
}

func (s *Service) wait(ctx context.Context) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

func (s *Service) sent(env Envelope, ch Channel) {
	s.delivered.Add(1)
	s.log.Debug("notification delivered",
		slog.String("channel", string(ch)),
		slog.String("envelope", env.ID),
		slog.String("user", env.UserID),
		slog.String("type", string(env.Type)))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.NotifyDelivered,
			Data: DeliveryEvent{EnvelopeID: env.ID, UserID: env.UserID, Type: env.Type, Channel: ch},
		})
	}
}

func (s *Service) drop(env Envelope, ch Channel, reason string) {
	s.dropped.Add(1)
	s.log.Debug("notification dropped",
		slog.String("channel", string(ch)),
		slog.String("envelope", env.ID),
		slog.String("user", env.UserID),
		slog.String("reason", reason))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: eventbus.NotifyDropped,
			Data: DeliveryEvent{EnvelopeID: env.ID, UserID: env.UserID, Type: env.Type, Channel: ch, Error: reason},
		})
	}
}
