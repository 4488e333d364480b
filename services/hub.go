package services

import (
	"sync"

	"duel-arena/models"
)

// Hub fans persisted notifications out to live subscribers of this process.
// Delivery is best-effort: a subscriber whose buffer is full misses the
// wake-up and catches up from the database on its next poll.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan *models.Notification]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]map[chan *models.Notification]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a listener for userID. The returned cancel func must
// be called once the listener goes away; it closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan *models.Notification, func()) {
	ch := make(chan *models.Notification, h.buffer)

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan *models.Notification]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish never blocks. It returns how many subscribers received n.
func (h *Hub) Publish(n *models.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subs[n.UserID] {
		select {
		case ch <- n:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of live listeners for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
