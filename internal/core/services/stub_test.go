package services

import (
	"context"
	"sync"
	"time"

	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"
)

// nopLogger keeps service construction quiet in tests.
type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any)            {}
func (nopLogger) Info(msg string, args ...any)             {}
func (nopLogger) Warn(msg string, args ...any)             {}
func (nopLogger) Error(msg string, err error, args ...any) {}
func (nopLogger) Action(action string) mylogger.Logger     { return nopLogger{} }
func (nopLogger) With(args ...any) mylogger.Logger         { return nopLogger{} }
func (nopLogger) WithGroup(name string) mylogger.Logger    { return nopLogger{} }

// memRidesRepo mimics the database repo: per-ride exclusive locks, fn
// mutations applied only on success.
type memRidesRepo struct {
	mu     sync.Mutex
	rides  map[string]*model.Ride
	locks  map[string]*sync.Mutex
	offers map[string][]model.Offer
}

func newMemRidesRepo() *memRidesRepo {
	return &memRidesRepo{
		rides:  make(map[string]*model.Ride),
		locks:  make(map[string]*sync.Mutex),
		offers: make(map[string][]model.Offer),
	}
}

func (m *memRidesRepo) CreateRide(ctx context.Context, r *model.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.rides[r.ID] = &c
	m.locks[r.ID] = &sync.Mutex{}
	return nil
}

func (m *memRidesRepo) FindByRideId(ctx context.Context, rideID string) (*model.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return nil, myerrors.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *memRidesRepo) WithRideLock(ctx context.Context, rideID string, fn func(r *model.Ride) error) error {
	m.mu.Lock()
	lock, ok := m.locks[rideID]
	m.mu.Unlock()
	if !ok {
		return myerrors.ErrNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	c := *m.rides[rideID]
	m.mu.Unlock()

	if err := fn(&c); err != nil {
		return err
	}

	m.mu.Lock()
	m.rides[rideID] = &c
	m.mu.Unlock()
	return nil
}

func (m *memRidesRepo) AppendOffer(ctx context.Context, rideID string, offer model.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[rideID]; !ok {
		return myerrors.ErrNotFound
	}
	m.offers[rideID] = append(m.offers[rideID], offer)
	return nil
}

func (m *memRidesRepo) SearchingSince(ctx context.Context, cutoff time.Time) ([]model.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Ride
	for _, r := range m.rides {
		if r.Status == model.StatusSearching && r.RequestedAt.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRidesRepo) OpenSearching(ctx context.Context, limit int) ([]model.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Ride
	for _, r := range m.rides {
		if r.Status == model.StatusSearching {
			out = append(out, *r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memRidesRepo) ActiveRideIDForDriver(ctx context.Context, driverID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rides {
		if r.DriverID != driverID {
			continue
		}
		switch r.Status {
		case model.StatusAccepted, model.StatusArrived, model.StatusOngoing:
			return r.ID, nil
		}
	}
	return "", nil
}

var _ ports.IRidesRepo = (*memRidesRepo)(nil)

// memWalletRepo applies the same atomic commit contract as the database
// repo: balance mutations and the ledger entry land together or not at all.
type memWalletRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.WalletAccount
	entries  map[string]*model.LedgerEntry
}

func newMemWalletRepo() *memWalletRepo {
	return &memWalletRepo{
		accounts: make(map[string]*model.WalletAccount),
		entries:  make(map[string]*model.LedgerEntry),
	}
}

func (m *memWalletRepo) Account(ctx context.Context, userID string) (*model.WalletAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[userID]
	if !ok {
		return nil, myerrors.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (m *memWalletRepo) CreateAccount(ctx context.Context, a *model.WalletAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.UserID]; ok {
		return nil
	}
	c := *a
	m.accounts[a.UserID] = &c
	return nil
}

func (m *memWalletRepo) EntryByReference(ctx context.Context, ref string) (*model.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ref]
	if !ok {
		return nil, myerrors.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (m *memWalletRepo) WithAccountLock(ctx context.Context, ids []string, fn func(accounts map[string]*model.WalletAccount) (*model.LedgerEntry, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]*model.WalletAccount, len(ids))
	for _, id := range ids {
		a, ok := m.accounts[id]
		if !ok {
			continue
		}
		c := *a
		snapshot[id] = &c
	}

	entry, err := fn(snapshot)
	if err != nil {
		return err
	}
	if _, ok := m.entries[entry.Reference]; ok {
		return myerrors.ErrDuplicateReference
	}

	for id, a := range snapshot {
		m.accounts[id] = a
	}
	e := *entry
	m.entries[entry.Reference] = &e
	return nil
}

var _ ports.IWalletRepo = (*memWalletRepo)(nil)

// stubDirectory serves canned Nearby answers and records availability flips.
type stubDirectory struct {
	mu           sync.Mutex
	nearby       []model.DriverDistance
	nearbyErr    error
	availability map[string]model.DriverAvailability
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{availability: make(map[string]model.DriverAvailability)}
}

func (s *stubDirectory) Upsert(ctx context.Context, pos model.DriverPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability[pos.DriverID] = pos.Availability
	return nil
}

func (s *stubDirectory) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]model.DriverDistance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nearbyErr != nil {
		return nil, s.nearbyErr
	}
	out := make([]model.DriverDistance, len(s.nearby))
	copy(out, s.nearby)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubDirectory) SetAvailability(ctx context.Context, driverID string, a model.DriverAvailability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability[driverID] = a
	return nil
}

func (s *stubDirectory) Remove(ctx context.Context, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.availability, driverID)
	return nil
}

func (s *stubDirectory) availabilityOf(driverID string) model.DriverAvailability {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availability[driverID]
}

var _ ports.IDriverDirectory = (*stubDirectory)(nil)

// recordingBus captures everything published so tests can assert on the
// fan-out without real subscribers.
type recordingBus struct {
	mu        sync.Mutex
	published map[string][]event.Event
}

func newRecordingBus() *recordingBus {
	return &recordingBus{published: make(map[string][]event.Event)}
}

func (b *recordingBus) Publish(room string, ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[room] = append(b.published[room], ev)
}

type recordedSub struct{ ch chan event.Event }

func (s *recordedSub) C() <-chan event.Event { return s.ch }
func (s *recordedSub) Close()                { close(s.ch) }

func (b *recordingBus) Subscribe(room string) ports.ISubscription {
	return &recordedSub{ch: make(chan event.Event, 1)}
}

func (b *recordingBus) eventsFor(room string) []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]event.Event, len(b.published[room]))
	copy(out, b.published[room])
	return out
}

func (b *recordingBus) typesFor(room string) []string {
	events := b.eventsFor(room)
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

var _ ports.IBus = (*recordingBus)(nil)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
