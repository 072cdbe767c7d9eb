package bus

import (
	"testing"
	"time"

	"ridelink/internal/core/domain/event"
	"ridelink/internal/mylogger"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any)            {}
func (nopLogger) Info(msg string, args ...any)             {}
func (nopLogger) Warn(msg string, args ...any)             {}
func (nopLogger) Error(msg string, err error, args ...any) {}
func (nopLogger) Action(action string) mylogger.Logger     { return nopLogger{} }
func (nopLogger) With(args ...any) mylogger.Logger         { return nopLogger{} }
func (nopLogger) WithGroup(name string) mylogger.Logger    { return nopLogger{} }

func recv(t *testing.T, sub <-chan event.Event) event.Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func TestPublishReachesRoomMembers(t *testing.T) {
	h := NewHub(nopLogger{})

	a := h.Subscribe("ride:1")
	b := h.Subscribe("ride:1")
	other := h.Subscribe("ride:2")

	h.Publish("ride:1", event.Event{Type: "ride.status_changed"})

	for _, sub := range []<-chan event.Event{a.C(), b.C()} {
		if ev := recv(t, sub); ev.Type != "ride.status_changed" {
			t.Errorf("got %s, want ride.status_changed", ev.Type)
		}
	}
	select {
	case ev := <-other.C():
		t.Errorf("ride:2 subscriber received %s", ev.Type)
	default:
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	h := NewHub(nopLogger{})

	h.Publish("ride:1", event.Event{Type: "early"})
	late := h.Subscribe("ride:1")

	select {
	case ev := <-late.C():
		t.Errorf("late subscriber received %s, there is no replay", ev.Type)
	default:
	}

	h.Publish("ride:1", event.Event{Type: "after"})
	if ev := recv(t, late.C()); ev.Type != "after" {
		t.Errorf("got %s, want after", ev.Type)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	h := NewHub(nopLogger{})

	sub := h.Subscribe("user:alice")
	sub.Close()

	// publishing to a room with no members is a no-op
	h.Publish("user:alice", event.Event{Type: "gone"})

	if _, ok := <-sub.C(); ok {
		t.Error("channel must be closed after Close")
	}

	// Close is idempotent
	sub.Close()
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub(nopLogger{})

	sub := h.Subscribe("user:bob")
	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish("user:bob", event.Event{Type: "burst"})
	}

	// the buffer holds exactly subscriberBuffer events, the rest dropped
	got := 0
	for {
		select {
		case <-sub.C():
			got++
			continue
		default:
		}
		break
	}
	if got != subscriberBuffer {
		t.Errorf("buffered %d events, want %d", got, subscriberBuffer)
	}
}
