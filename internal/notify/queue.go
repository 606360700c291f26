package notify

import "sync"

// queue is the unbounded in-memory envelope queue. Envelopes are moved, not
// shared: drain hands ownership of the batch to the caller.
type queue struct {
	mu    sync.Mutex
	items []Envelope
}

func (q *queue) push(e Envelope) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
}

// drain removes and returns up to max envelopes in enqueue order.
func (q *queue) drain(max int) []Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || max <= 0 {
		return nil
	}
	n := max
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]Envelope, n)
	copy(batch, q.items[:n])
	rest := make([]Envelope, len(q.items)-n)
	copy(rest, q.items[n:])
	q.items = rest
	return batch
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
