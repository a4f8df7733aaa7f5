package properties

import (
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/pidisplay/internal/compositor"
)

// DefaultBuffer is the number of pending updates kept per subscriber.
const DefaultBuffer = 16

// Update is a full refresh of every property value.
type Update struct {
	Values map[string]any
	// Changed reports whether the rendered text changed.
	Changed bool
}

// Subscription receives updates until it is closed.
type Subscription struct {
	ID ulid.ULID

	hub     *Hub
	ch      chan Update
	dropped int
}

// C returns the update channel. It is closed when the subscription or the
// hub is closed.
func (s *Subscription) C() <-chan Update {
	return s.ch
}

// Dropped returns how many updates were discarded because the subscriber
// fell behind.
func (s *Subscription) Dropped() int {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.dropped
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.ID)
}

// Hub fans display changes out to subscribers. It implements
// compositor.Observer and never blocks the caller.
type Hub struct {
	mu     sync.Mutex
	subs   map[ulid.ULID]*Subscription
	buffer int
	closed bool
	logger *slog.Logger
}

// NewHub creates a hub. A buffer below one uses DefaultBuffer.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[ulid.ULID]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. Subscribing to a closed hub
// returns a subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{
		ID:  ulid.Make(),
		hub: h,
		ch:  make(chan Update, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(s.ch)
		return s
	}
	h.subs[s.ID] = s
	h.logger.Debug("subscriber added", "subscriber", s.ID.String(), "subscribers", len(h.subs))
	return s
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// DisplayChanged publishes the snapshot to every subscriber. A subscriber
// whose buffer is full loses its oldest pending update.
func (h *Hub) DisplayChanged(snap compositor.Snapshot) {
	h.Publish(Update{Values: Values(snap), Changed: snap.Changed})
}

// Publish sends u to every subscriber without blocking.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range h.subs {
		select {
		case s.ch <- u:
			continue
		default:
		}

		select {
		case <-s.ch:
			s.dropped++
		default:
		}
		select {
		case s.ch <- u:
		default:
			s.dropped++
		}
		h.logger.Debug("subscriber lagging, dropped oldest update", "subscriber", s.ID.String(), "dropped", s.dropped)
	}
}

// Close closes every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}

func (h *Hub) remove(id ulid.ULID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(s.ch)
	h.logger.Debug("subscriber removed", "subscriber", id.String(), "subscribers", len(h.subs))
}
