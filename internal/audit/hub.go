package audit

import "sync"

// subscriberBuffer bounds how far a slow observer may lag before entries are
// dropped for it.
const subscriberBuffer = 16

// Hub is a publish/subscribe channel for log entries. Delivery is
// best-effort: a missing or slow observer never blocks a publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Entry]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Entry]struct{})}
}

// Subscribe registers an observer. The returned cancel function must be
// called when the observer disconnects; it closes the channel.
func (h *Hub) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an entry to every subscriber, dropping it for observers
// whose buffer is full.
func (h *Hub) Publish(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of connected observers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
