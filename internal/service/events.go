package service

import (
	"sync"
	"time"

	"github.com/avelar/songforge/internal/domain"
)

// Event is a job lifecycle notification pushed to the owning user's
// subscribers.
type Event struct {
	UserID     string           `json:"-"`
	TaskID     string           `json:"task_id"`
	Status     domain.JobStatus `json:"status"`
	TrackCount int              `json:"track_count,omitempty"`
	At         time.Time        `json:"at"`
}

// EventHub fans job lifecycle events out to per-user subscribers. Publishing
// never blocks: a subscriber that cannot keep up drops events rather than
// stalling the webhook path.
type EventHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewEventHub creates an empty hub.
func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a listener for one user's events. The returned cancel
// function must be called when the listener goes away; after cancel the
// channel is closed.
func (h *EventHub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all of a user's subscribers without blocking.
func (h *EventHub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the number of active subscriptions for a user.
func (h *EventHub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
