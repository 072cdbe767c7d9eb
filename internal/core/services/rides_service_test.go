package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/myerrors"
)

type ridesFixture struct {
	rides      *RidesService
	repo       *memRidesRepo
	bus        *recordingBus
	wallet     *WalletService
	walletRepo *memWalletRepo
}

func newRidesFixture(t *testing.T) *ridesFixture {
	t.Helper()
	repo := newMemRidesRepo()
	walletRepo := newMemWalletRepo()
	bus := newRecordingBus()
	wallet := NewWalletService(nopLogger{}, walletRepo, bus, decimal.RequireFromString("0.20"), decimal.Zero)
	return &ridesFixture{
		rides:      NewRidesService(nopLogger{}, repo, bus, wallet),
		repo:       repo,
		bus:        bus,
		wallet:     wallet,
		walletRepo: walletRepo,
	}
}

func rideRequest(requesterID string) dto.RideRequestDto {
	return dto.RideRequestDto{
		RequesterID:          strPtr(requesterID),
		PickUpLatitude:       floatPtr(-8.8399),
		PickUpLongitude:      floatPtr(13.2894),
		PickUpAddress:        strPtr("Largo do Kinaxixi"),
		DestinationLatitude:  floatPtr(-8.8147),
		DestinationLongitude: floatPtr(13.2302),
		DestinationAddress:   strPtr("Ilha do Cabo"),
	}
}

// seedAccounts provisions the rider, driver and both system accounts and
// puts opening money on the rider.
func (f *ridesFixture) seedAccounts(t *testing.T, riderID, driverID, riderBalance string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{model.ClearingAccountID, model.PlatformAccountID} {
		if err := f.wallet.EnsureAccount(ctx, id, true); err != nil {
			t.Fatalf("ensure system account: %v", err)
		}
	}
	for _, id := range []string{riderID, driverID} {
		if err := f.wallet.EnsureAccount(ctx, id, false); err != nil {
			t.Fatalf("ensure account: %v", err)
		}
	}
	f.walletRepo.mu.Lock()
	f.walletRepo.accounts[riderID].Balance = decimal.RequireFromString(riderBalance)
	f.walletRepo.mu.Unlock()
}

func TestCreateRideDefaults(t *testing.T) {
	f := newRidesFixture(t)

	ride, err := f.rides.CreateRide(context.Background(), rideRequest("rider-1"))
	if err != nil {
		t.Fatalf("CreateRide: %v", err)
	}
	if ride.Status != model.StatusSearching {
		t.Errorf("status = %s, want searching", ride.Status)
	}
	if ride.DriverID != "" {
		t.Errorf("new ride must not carry a driver, got %q", ride.DriverID)
	}
	if ride.Category != ECONOMY {
		t.Errorf("category = %s, want economy", ride.Category)
	}
	if !ride.QuotedPrice.IsPositive() {
		t.Errorf("quoted price = %s, want positive estimate", ride.QuotedPrice)
	}
	if ride.PaymentStatus != model.PaymentUnpaid {
		t.Errorf("payment status = %s, want unpaid", ride.PaymentStatus)
	}
}

func TestCreateRideValidation(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*dto.RideRequestDto)
	}{
		{"missing requester", func(r *dto.RideRequestDto) { r.RequesterID = nil }},
		{"missing pickup", func(r *dto.RideRequestDto) { r.PickUpLatitude = nil }},
		{"latitude out of range", func(r *dto.RideRequestDto) { r.PickUpLatitude = floatPtr(91) }},
		{"bad category", func(r *dto.RideRequestDto) { r.Category = strPtr("limousine") }},
		{"bad payment method", func(r *dto.RideRequestDto) { r.PaymentMethod = strPtr("barter") }},
		{"negative quote", func(r *dto.RideRequestDto) { r.QuotedPrice = strPtr("-10") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := rideRequest("rider-1")
			tc.mutate(&req)
			if _, err := f.rides.CreateRide(ctx, req); !myerrors.IsValidation(err) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestAcceptSingleWinner(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()

	ride, err := f.rides.CreateRide(ctx, rideRequest("rider-1"))
	if err != nil {
		t.Fatalf("CreateRide: %v", err)
	}

	const drivers = 16
	var (
		wg        sync.WaitGroup
		winners   int
		conflicts int
		mu        sync.Mutex
	)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.rides.Accept(ctx, ride.ID, driverName(n), decimal.Zero)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, myerrors.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected accept error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if conflicts != drivers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, drivers-1)
	}

	got, err := f.rides.GetRide(ctx, ride.ID)
	if err != nil {
		t.Fatalf("GetRide: %v", err)
	}
	if got.Status != model.StatusAccepted {
		t.Errorf("status = %s, want accepted", got.Status)
	}
	if got.DriverID == "" {
		t.Error("accepted ride must carry the winning driver")
	}
}

func driverName(n int) string {
	return "driver-" + string(rune('a'+n))
}

func TestAcceptNegotiatedPrice(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()

	ride, _ := f.rides.CreateRide(ctx, rideRequest("rider-1"))
	accepted, err := f.rides.Accept(ctx, ride.ID, "driver-1", decimal.RequireFromString("1800"))
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.FinalPrice.Cmp(decimal.RequireFromString("1800")) != 0 {
		t.Errorf("final price = %s, want 1800", accepted.FinalPrice)
	}
}

func TestAdvanceIllegalTransitions(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()
	rider := dto.Principal{UserID: "rider-1", Role: dto.RolePassenger}

	ride, _ := f.rides.CreateRide(ctx, rideRequest("rider-1"))

	// a searching ride cannot advance at all, accepted only through Accept
	for _, target := range []model.RideStatus{model.StatusAccepted, model.StatusOngoing, model.StatusCompleted} {
		if _, err := f.rides.Advance(ctx, ride.ID, rider, target); !errors.Is(err, myerrors.ErrConflict) {
			t.Errorf("searching -> %s: got %v, want conflict", target, err)
		}
	}

	if _, err := f.rides.Accept(ctx, ride.ID, "driver-1", decimal.Zero); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	// accepted can only go to arrived
	if _, err := f.rides.Advance(ctx, ride.ID, rider, model.StatusCompleted); !errors.Is(err, myerrors.ErrConflict) {
		t.Errorf("accepted -> completed: got %v, want conflict", err)
	}
	if _, err := f.rides.Advance(ctx, ride.ID, rider, model.RideStatus("teleported")); !myerrors.IsValidation(err) {
		t.Errorf("unknown status: got %v, want validation error", err)
	}
}

func TestAdvanceAuthorization(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()

	ride, _ := f.rides.CreateRide(ctx, rideRequest("rider-1"))
	f.rides.Accept(ctx, ride.ID, "driver-1", decimal.Zero)

	stranger := dto.Principal{UserID: "rider-2", Role: dto.RolePassenger}
	if _, err := f.rides.Advance(ctx, ride.ID, stranger, model.StatusArrived); !errors.Is(err, myerrors.ErrUnauthorized) {
		t.Errorf("stranger advance: got %v, want unauthorized", err)
	}

	driver := dto.Principal{UserID: "driver-1", Role: dto.RoleDriver}
	if _, err := f.rides.Advance(ctx, ride.ID, driver, model.StatusArrived); err != nil {
		t.Errorf("driver advance: %v", err)
	}
}

func TestCompletionSettlesWallet(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()
	f.seedAccounts(t, "rider-1", "driver-1", "5000")

	req := rideRequest("rider-1")
	req.QuotedPrice = strPtr("2000")
	ride, err := f.rides.CreateRide(ctx, req)
	if err != nil {
		t.Fatalf("CreateRide: %v", err)
	}
	if _, err := f.rides.Accept(ctx, ride.ID, "driver-1", decimal.Zero); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	driver := dto.Principal{UserID: "driver-1", Role: dto.RoleDriver}
	for _, target := range []model.RideStatus{model.StatusArrived, model.StatusOngoing, model.StatusCompleted} {
		if _, err := f.rides.Advance(ctx, ride.ID, driver, target); err != nil {
			t.Fatalf("Advance to %s: %v", target, err)
		}
	}

	got, _ := f.rides.GetRide(ctx, ride.ID)
	if got.PaymentStatus != model.PaymentPaid {
		t.Errorf("payment status = %s, want paid", got.PaymentStatus)
	}

	// 2000 fare at 20% commission: 400 to the platform, 1600 to the driver
	assertBalance(t, f.wallet, "rider-1", "3000.00")
	assertBalance(t, f.wallet, "driver-1", "1600.00")
	assertBalance(t, f.wallet, model.PlatformAccountID, "400.00")
	assertBalance(t, f.wallet, model.ClearingAccountID, "0.00")
}

func assertBalance(t *testing.T, wallet *WalletService, userID, want string) {
	t.Helper()
	a, err := wallet.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("Balance(%s): %v", userID, err)
	}
	if a.Balance.StringFixed(2) != want {
		t.Errorf("balance of %s = %s, want %s", userID, a.Balance.StringFixed(2), want)
	}
}

func TestCompletionRetriesSettlement(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()
	// rider cannot cover the fare yet
	f.seedAccounts(t, "rider-1", "driver-1", "100")

	req := rideRequest("rider-1")
	req.QuotedPrice = strPtr("2000")
	ride, _ := f.rides.CreateRide(ctx, req)
	f.rides.Accept(ctx, ride.ID, "driver-1", decimal.Zero)

	driver := dto.Principal{UserID: "driver-1", Role: dto.RoleDriver}
	f.rides.Advance(ctx, ride.ID, driver, model.StatusArrived)
	f.rides.Advance(ctx, ride.ID, driver, model.StatusOngoing)

	got, err := f.rides.Advance(ctx, ride.ID, driver, model.StatusCompleted)
	if !errors.Is(err, myerrors.ErrInsufficientFunds) {
		t.Fatalf("got %v, want insufficient funds", err)
	}
	if got == nil || got.Status != model.StatusCompleted {
		t.Fatal("ride must stay completed even when settlement fails")
	}

	// top up and retry through the terminal no-op path
	f.walletRepo.mu.Lock()
	f.walletRepo.accounts["rider-1"].Balance = decimal.RequireFromString("5000")
	f.walletRepo.mu.Unlock()

	if _, err := f.rides.Advance(ctx, ride.ID, driver, model.StatusCompleted); err != nil {
		t.Fatalf("retried completion: %v", err)
	}
	fresh, _ := f.rides.GetRide(ctx, ride.ID)
	if fresh.PaymentStatus != model.PaymentPaid {
		t.Errorf("payment status = %s, want paid after retry", fresh.PaymentStatus)
	}
	assertBalance(t, f.wallet, "driver-1", "1600.00")
}

func TestCancelRules(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()
	rider := dto.Principal{UserID: "rider-1", Role: dto.RolePassenger}

	ride, _ := f.rides.CreateRide(ctx, rideRequest("rider-1"))

	stranger := dto.Principal{UserID: "someone-else", Role: dto.RolePassenger}
	if _, err := f.rides.Cancel(ctx, ride.ID, stranger, "not mine"); !errors.Is(err, myerrors.ErrUnauthorized) {
		t.Errorf("stranger cancel: got %v, want unauthorized", err)
	}

	cancelled, err := f.rides.Cancel(ctx, ride.ID, rider, "changed my mind")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.CancelledBy != dto.RolePassenger {
		t.Errorf("cancelled by = %s, want %s", cancelled.CancelledBy, dto.RolePassenger)
	}

	// repeated cancel is a quiet no-op
	before := len(f.bus.eventsFor(event.RideRoom(ride.ID)))
	if _, err := f.rides.Cancel(ctx, ride.ID, rider, "again"); err != nil {
		t.Errorf("repeated cancel: %v", err)
	}
	if after := len(f.bus.eventsFor(event.RideRoom(ride.ID))); after != before {
		t.Errorf("no-op cancel must not publish, events went %d -> %d", before, after)
	}

	// the no-op shortcut still authorizes
	if _, err := f.rides.Cancel(ctx, ride.ID, stranger, "snooping"); !errors.Is(err, myerrors.ErrUnauthorized) {
		t.Errorf("stranger cancel of cancelled ride: got %v, want unauthorized", err)
	}
}

func TestCancelExpiredSearchRequiresSearching(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()

	ride, _ := f.rides.CreateRide(ctx, rideRequest("rider-1"))
	if _, err := f.rides.Accept(ctx, ride.ID, "driver-1", decimal.Zero); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := f.rides.CancelExpiredSearch(ctx, ride.ID, "search timed out"); !errors.Is(err, myerrors.ErrConflict) {
		t.Errorf("got %v, want conflict on a matched ride", err)
	}

	open, _ := f.rides.CreateRide(ctx, rideRequest("rider-2"))
	got, err := f.rides.CancelExpiredSearch(ctx, open.ID, "search timed out")
	if err != nil {
		t.Fatalf("CancelExpiredSearch: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if got.CancelledBy != dto.RoleSystem {
		t.Errorf("cancelled by = %s, want %s", got.CancelledBy, dto.RoleSystem)
	}
}

func TestCancelCompletedRideConflicts(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()
	f.seedAccounts(t, "rider-1", "driver-1", "5000")

	ride, _ := f.rides.CreateRide(ctx, rideRequest("rider-1"))
	f.rides.Accept(ctx, ride.ID, "driver-1", decimal.Zero)

	driver := dto.Principal{UserID: "driver-1", Role: dto.RoleDriver}
	for _, target := range []model.RideStatus{model.StatusArrived, model.StatusOngoing, model.StatusCompleted} {
		if _, err := f.rides.Advance(ctx, ride.ID, driver, target); err != nil {
			t.Fatalf("Advance to %s: %v", target, err)
		}
	}

	rider := dto.Principal{UserID: "rider-1", Role: dto.RolePassenger}
	if _, err := f.rides.Cancel(ctx, ride.ID, rider, "too late"); !errors.Is(err, myerrors.ErrConflict) {
		t.Errorf("cancel completed: got %v, want conflict", err)
	}
}

func TestStatusChangePublishedToAllParties(t *testing.T) {
	f := newRidesFixture(t)
	ctx := context.Background()

	ride, _ := f.rides.CreateRide(ctx, rideRequest("rider-1"))
	f.rides.Accept(ctx, ride.ID, "driver-1", decimal.Zero)

	for _, room := range []string{event.RideRoom(ride.ID), event.UserRoom("rider-1"), event.UserRoom("driver-1")} {
		types := f.bus.typesFor(room)
		found := false
		for _, typ := range types {
			if typ == event.TypeRideStatus {
				found = true
			}
		}
		if !found {
			t.Errorf("room %s saw %v, want a %s event", room, types, event.TypeRideStatus)
		}
	}
}
