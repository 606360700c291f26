// Package eventbus is a small in-memory fanout used to decouple the job
// core from observers (admin statistics, tests).
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; slow subscribers lose events.
package eventbus

import (
	"sync"
	"time"
)

// Event types published by the core.
const (
	TaskStarted       = "task.started"
	TaskSucceeded     = "task.succeeded"
	TaskFailed        = "task.failed"
	FamilyStarted     = "family.started"
	FamilyStopped     = "family.stopped"
	NotifyQueued      = "notify.queued"
	NotifyDelivered   = "notify.delivered"
	NotifyDropped     = "notify.dropped"
	NotifyChannelFail = "notify.channel_failed"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]chan Event
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		// A subscriber may close its channel concurrently with Publish;
		// the recover keeps Publish non-failing in that window.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Recorder keeps the most recent events for status introspection.
type Recorder struct {
	mu   sync.Mutex
	buf  []Event
	max  int
	stop func()
}

// NewRecorder subscribes to bus and retains up to max recent events.
// Call Close to detach.
func NewRecorder(bus Bus, max int) *Recorder {
	if max <= 0 {
		max = 200
	}
	r := &Recorder{max: max}
	ch, unsub := bus.Subscribe(64)
	r.stop = unsub
	go func() {
		for e := range ch {
			r.mu.Lock()
			r.buf = append(r.buf, e)
			if len(r.buf) > r.max {
				r.buf = r.buf[len(r.buf)-r.max:]
			}
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *Recorder) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.buf...)
}

func (r *Recorder) Close() {
	if r.stop != nil {
		r.stop()
	}
}
