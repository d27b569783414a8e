// Package broadcast fans classified events out to live subscribers. Delivery
// is fire-and-forget: there is no replay, and subscribers that cannot keep up
// are skipped rather than allowed to stall the classifier loop. Backfill
// after reconnect is the UI's job via the message query surface.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
)

// Event kinds published to subscribers.
const (
	KindMessage    = "message"
	KindRegistered = "registered"
)

// Event is the unit delivered to subscribers.
type Event struct {
	Kind    string          `json:"kind"`
	Message *models.Message `json:"message,omitempty"`
	Phone   string          `json:"phone,omitempty"`
}

const subscriberBuffer = 16

// Hub owns the live subscriber set. One Hub exists per process, created when
// the transport session is established and closed on teardown.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
	logger zerolog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[chan Event]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber and returns its event stream plus a
// cancel function. Events published before Subscribe are not replayed.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// PublishMessage broadcasts a newly stored message.
func (h *Hub) PublishMessage(msg *models.Message) {
	h.publish(Event{Kind: KindMessage, Message: msg})
}

// PublishRegistered broadcasts a completed registration for the canonical
// phone address.
func (h *Hub) PublishRegistered(phone string) {
	h.publish(Event{Kind: KindRegistered, Phone: phone})
}

func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.logger.Warn().Str("kind", ev.Kind).Msg("subscriber too slow, event dropped")
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close tears the hub down, closing all subscriber streams.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}
