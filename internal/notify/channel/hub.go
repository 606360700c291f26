package channel

import (
	"context"
	"log/slog"
	"sync"

	"focusd/internal/notify"
)

// Hub fans realtime notifications out to live sessions. A user may hold
// several sessions at once (multiple tabs); each gets its own buffered
// channel. Delivery to a user with no sessions is the caller's concern, so
// the hub exposes Connected.
type Hub struct {
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

// Session is one live connection's receive side.
type Session struct {
	UserID string
	C      chan notify.Envelope

	hub  *Hub
	once sync.Once
}

// Close detaches the session from the hub and closes its channel. Safe to
// call more than once.
func (s *Session) Close() {
	s.once.Do(func() {
		s.hub.detach(s)
		close(s.C)
	})
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:      log,
		sessions: map[string]map[*Session]struct{}{},
	}
}

// Connect registers a live session for userID with the given channel buffer.
func (h *Hub) Connect(userID string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 8
	}
	s := &Session{UserID: userID, C: make(chan notify.Envelope, buffer), hub: h}

	h.mu.Lock()
	set, ok := h.sessions[userID]
	if !ok {
		set = map[*Session]struct{}{}
		h.sessions[userID] = set
	}
	set[s] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.log.Debug("realtime session connected", slog.String("user", userID), slog.Int("sessions", n))
	return s
}

func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	if set, ok := h.sessions[s.UserID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.UserID)
		}
	}
	h.mu.Unlock()
	h.log.Debug("realtime session disconnected", slog.String("user", s.UserID))
}

// Connected reports whether the user has at least one live session.
func (h *Hub) Connected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// Send delivers the envelope to every live session of the user. A session
// whose buffer is full is skipped rather than blocking the drain loop.
func (h *Hub) Send(ctx context.Context, userID string, env notify.Envelope) error {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[userID]))
	for s := range h.sessions[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.C <- env:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.log.Warn("realtime session buffer full; envelope skipped",
				slog.String("user", userID), slog.String("envelope", env.ID))
		}
	}
	return nil
}

// ConnectedCount returns the number of users with at least one session.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
