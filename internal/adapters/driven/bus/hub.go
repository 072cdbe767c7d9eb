package bus

import (
	"sync"

	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"
)

const subscriberBuffer = 16

// Hub is the in-process fan-out channel. Delivery is at-most-once per
// publish: a subscriber whose buffer is full simply misses the event, and
// late subscribers get nothing retroactively.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*subscription]struct{}
	log   mylogger.Logger
}

func NewHub(log mylogger.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*subscription]struct{}),
		log:   log,
	}
}

var _ ports.IBus = (*Hub)(nil)

func (h *Hub) Publish(room string, ev event.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.rooms[room] {
		select {
		case sub.ch <- ev:
		default:
			// slow consumer, drop
			h.log.Debug("dropping event for slow subscriber", "room", room, "type", ev.Type)
		}
	}
}

func (h *Hub) Subscribe(room string) ports.ISubscription {
	sub := &subscription{
		hub:  h,
		room: room,
		ch:   make(chan event.Event, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*subscription]struct{})
		h.rooms[room] = members
	}
	members[sub] = struct{}{}
	return sub
}

type subscription struct {
	hub  *Hub
	room string
	ch   chan event.Event
	once sync.Once
}

func (s *subscription) C() <-chan event.Event { return s.ch }

func (s *subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if members, ok := h.rooms[s.room]; ok {
			delete(members, s)
			if len(members) == 0 {
				delete(h.rooms, s.room)
			}
		}
		close(s.ch)
	})
}
