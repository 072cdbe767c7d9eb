package ports

import "ridelink/internal/core/domain/event"

// ISubscription is one member of a room. C is closed after Close returns.
type ISubscription interface {
	C() <-chan event.Event
	Close()
}

// IBus is the realtime fan-out channel. Publish is fire-and-forget and
// at-most-once per subscriber; there is no replay, late subscribers miss
// prior events and pull current state instead.
type IBus interface {
	Publish(room string, ev event.Event)
	Subscribe(room string) ISubscription
}
