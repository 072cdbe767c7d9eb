package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
)

type dispatchFixture struct {
	dispatch *DispatchService
	rides    *RidesService
	repo     *memRidesRepo
	dir      *stubDirectory
	bus      *recordingBus
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	repo := newMemRidesRepo()
	bus := newRecordingBus()
	dir := newStubDirectory()
	wallet := NewWalletService(nopLogger{}, newMemWalletRepo(), bus, decimal.RequireFromString("0.20"), decimal.Zero)
	rides := NewRidesService(nopLogger{}, repo, bus, wallet)
	dispatch := NewDispatchService(nopLogger{}, rides, repo, dir, bus, DispatchConfig{
		SearchRadiusKm: 5,
		CandidateLimit: 3,
		SearchTimeout:  10 * time.Minute,
		SweepInterval:  time.Second,
	})
	return &dispatchFixture{dispatch: dispatch, rides: rides, repo: repo, dir: dir, bus: bus}
}

func nearDriver(id string, distanceKm float64) model.DriverDistance {
	return model.DriverDistance{
		DriverPosition: model.DriverPosition{
			DriverID:     id,
			Latitude:     -8.8399,
			Longitude:    13.2894,
			Availability: model.DriverAvailable,
			UpdatedAt:    time.Now(),
		},
		DistanceKm: distanceKm,
	}
}

func TestRequestRideNoDrivers(t *testing.T) {
	f := newDispatchFixture(t)

	ride, candidates, err := f.dispatch.RequestRide(context.Background(), rideRequest("rider-1"))
	if err != nil {
		t.Fatalf("RequestRide: %v", err)
	}
	if candidates != 0 {
		t.Errorf("candidates = %d, want 0", candidates)
	}
	if ride.Status != model.StatusSearching {
		t.Errorf("status = %s, ride must stay open for passive matching", ride.Status)
	}

	types := f.bus.typesFor(event.UserRoom("rider-1"))
	if len(types) != 1 || types[0] != event.TypeRideNoDrivers {
		t.Errorf("requester saw %v, want [%s]", types, event.TypeRideNoDrivers)
	}
}

func TestRequestRideFansOutToCandidates(t *testing.T) {
	f := newDispatchFixture(t)
	f.dir.nearby = []model.DriverDistance{nearDriver("driver-1", 1.2), nearDriver("driver-2", 3.4)}

	_, candidates, err := f.dispatch.RequestRide(context.Background(), rideRequest("rider-1"))
	if err != nil {
		t.Fatalf("RequestRide: %v", err)
	}
	if candidates != 2 {
		t.Errorf("candidates = %d, want 2", candidates)
	}

	for _, driver := range []string{"driver-1", "driver-2"} {
		types := f.bus.typesFor(event.UserRoom(driver))
		if len(types) != 1 || types[0] != event.TypeRideOpportunity {
			t.Errorf("%s saw %v, want [%s]", driver, types, event.TypeRideOpportunity)
		}
	}
	if types := f.bus.typesFor(event.UserRoom("rider-1")); len(types) != 0 {
		t.Errorf("requester saw %v, want nothing until a driver answers", types)
	}
}

func TestRequestRideSurvivesDirectoryFailure(t *testing.T) {
	f := newDispatchFixture(t)
	f.dir.nearbyErr = errors.New("directory down")

	ride, candidates, err := f.dispatch.RequestRide(context.Background(), rideRequest("rider-1"))
	if err != nil {
		t.Fatalf("RequestRide: %v", err)
	}
	if candidates != 0 {
		t.Errorf("candidates = %d, want 0 on directory failure", candidates)
	}
	if ride.Status != model.StatusSearching {
		t.Errorf("status = %s, want searching", ride.Status)
	}
}

func TestAcceptLoserGetsConflictOnOwnRoomOnly(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	ride, _, _ := f.dispatch.RequestRide(ctx, rideRequest("rider-1"))

	won, err := f.dispatch.Accept(ctx, dto.RideAcceptDto{RideID: strPtr(ride.ID), DriverID: strPtr("driver-1")})
	if err != nil {
		t.Fatalf("winning accept: %v", err)
	}
	if won.DriverID != "driver-1" {
		t.Errorf("driver = %s, want driver-1", won.DriverID)
	}

	_, err = f.dispatch.Accept(ctx, dto.RideAcceptDto{RideID: strPtr(ride.ID), DriverID: strPtr("driver-2")})
	if !errors.Is(err, myerrors.ErrConflict) {
		t.Fatalf("losing accept: got %v, want conflict", err)
	}

	loserTypes := f.bus.typesFor(event.UserRoom("driver-2"))
	if len(loserTypes) == 0 || loserTypes[len(loserTypes)-1] != event.TypeRideConflict {
		t.Errorf("loser saw %v, want trailing %s", loserTypes, event.TypeRideConflict)
	}
	for _, typ := range f.bus.typesFor(event.RideRoom(ride.ID)) {
		if typ == event.TypeRideConflict {
			t.Error("conflict must stay on the loser's room, not the ride room")
		}
	}

	if got := f.dir.availabilityOf("driver-1"); got != model.DriverBusy {
		t.Errorf("winner availability = %s, want busy", got)
	}

	winnerTypes := f.bus.typesFor(event.UserRoom("driver-1"))
	found := false
	for _, typ := range winnerTypes {
		if typ == event.TypeRideAccepted {
			found = true
		}
	}
	if !found {
		t.Errorf("winner saw %v, want a %s event", winnerTypes, event.TypeRideAccepted)
	}
}

func TestCounterOffer(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	ride, _, _ := f.dispatch.RequestRide(ctx, rideRequest("rider-1"))

	err := f.dispatch.ProposeCounterOffer(ctx, dto.CounterOfferDto{
		RideID:   strPtr(ride.ID),
		DriverID: strPtr("driver-1"),
		Price:    strPtr("2500"),
	})
	if err != nil {
		t.Fatalf("ProposeCounterOffer: %v", err)
	}

	f.repo.mu.Lock()
	offers := f.repo.offers[ride.ID]
	f.repo.mu.Unlock()
	if len(offers) != 1 {
		t.Fatalf("offers = %d, want 1", len(offers))
	}
	if offers[0].Price.Cmp(decimal.RequireFromString("2500")) != 0 {
		t.Errorf("offer price = %s, want 2500", offers[0].Price)
	}

	// the offer never moves the ride
	fresh, _ := f.rides.GetRide(ctx, ride.ID)
	if fresh.Status != model.StatusSearching {
		t.Errorf("status = %s, offers must not assign the ride", fresh.Status)
	}

	types := f.bus.typesFor(event.UserRoom("rider-1"))
	if len(types) == 0 || types[len(types)-1] != event.TypeCounterOffer {
		t.Errorf("requester saw %v, want trailing %s", types, event.TypeCounterOffer)
	}

	// once matched, further offers are rejected
	f.dispatch.Accept(ctx, dto.RideAcceptDto{RideID: strPtr(ride.ID), DriverID: strPtr("driver-9")})
	err = f.dispatch.ProposeCounterOffer(ctx, dto.CounterOfferDto{
		RideID:   strPtr(ride.ID),
		DriverID: strPtr("driver-1"),
		Price:    strPtr("2600"),
	})
	if !errors.Is(err, myerrors.ErrConflict) {
		t.Errorf("offer on matched ride: got %v, want conflict", err)
	}
}

func TestRematchNearby(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	ride, _, _ := f.dispatch.RequestRide(ctx, rideRequest("rider-1"))

	// ping right at the pickup point
	offered, err := f.dispatch.RematchNearby(ctx, "driver-1", ride.Origin.Latitude, ride.Origin.Longitude)
	if err != nil {
		t.Fatalf("RematchNearby: %v", err)
	}
	if offered != 1 {
		t.Errorf("offered = %d, want 1", offered)
	}
	types := f.bus.typesFor(event.UserRoom("driver-1"))
	if len(types) != 1 || types[0] != event.TypeRideOpportunity {
		t.Errorf("driver saw %v, want [%s]", types, event.TypeRideOpportunity)
	}

	// a ping far outside the radius offers nothing
	offered, err = f.dispatch.RematchNearby(ctx, "driver-2", ride.Origin.Latitude+1, ride.Origin.Longitude)
	if err != nil {
		t.Fatalf("RematchNearby far: %v", err)
	}
	if offered != 0 {
		t.Errorf("offered = %d, want 0 outside the radius", offered)
	}
}

func TestSweepCancelsStaleSearches(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	stale, _, _ := f.dispatch.RequestRide(ctx, rideRequest("rider-1"))
	fresh, _, _ := f.dispatch.RequestRide(ctx, rideRequest("rider-2"))

	f.repo.mu.Lock()
	f.repo.rides[stale.ID].RequestedAt = time.Now().Add(-time.Hour)
	f.repo.mu.Unlock()

	f.dispatch.sweepOnce(ctx, nopLogger{})

	got, _ := f.rides.GetRide(ctx, stale.ID)
	if got.Status != model.StatusCancelled {
		t.Fatalf("stale ride status = %s, want cancelled", got.Status)
	}
	if got.CancelledBy != dto.RoleSystem {
		t.Errorf("cancelled by = %s, want %s", got.CancelledBy, dto.RoleSystem)
	}
	if got.CancellationReason != "search timed out" {
		t.Errorf("reason = %q", got.CancellationReason)
	}

	still, _ := f.rides.GetRide(ctx, fresh.ID)
	if still.Status != model.StatusSearching {
		t.Errorf("fresh ride status = %s, want searching", still.Status)
	}
}

// overlapRepo runs a callback between the stale listing and the sweep's
// cancel, pinning down the interleaving where a driver answers first.
type overlapRepo struct {
	ports.IRidesRepo
	afterList func()
}

func (r *overlapRepo) SearchingSince(ctx context.Context, cutoff time.Time) ([]model.Ride, error) {
	out, err := r.IRidesRepo.SearchingSince(ctx, cutoff)
	if err == nil && r.afterList != nil {
		r.afterList()
	}
	return out, err
}

func TestSweepSparesFreshlyAcceptedRide(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	ride, _, _ := f.dispatch.RequestRide(ctx, rideRequest("rider-1"))
	f.repo.mu.Lock()
	f.repo.rides[ride.ID].RequestedAt = time.Now().Add(-time.Hour)
	f.repo.mu.Unlock()

	repo := &overlapRepo{IRidesRepo: f.repo, afterList: func() {
		if _, err := f.rides.Accept(ctx, ride.ID, "driver-1", decimal.Zero); err != nil {
			t.Errorf("accept during sweep: %v", err)
		}
	}}
	sweeper := NewDispatchService(nopLogger{}, f.rides, repo, f.dir, f.bus, f.dispatch.cfg)
	sweeper.sweepOnce(ctx, nopLogger{})

	got, _ := f.rides.GetRide(ctx, ride.ID)
	if got.Status != model.StatusAccepted {
		t.Fatalf("status = %s, the sweep must not reap a matched ride", got.Status)
	}
	if got.DriverID != "driver-1" {
		t.Errorf("driver = %s, want driver-1", got.DriverID)
	}
}
