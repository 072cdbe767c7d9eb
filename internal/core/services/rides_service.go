package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/geo"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"
	"ridelink/internal/observability"
)

const (
	ECONOMY = "economy"
	PREMIUM = "premium"
	XL      = "xl"
)

// Fallback fare estimate when the requester sends no quote.
var (
	baseFare = map[string]decimal.Decimal{
		ECONOMY: decimal.NewFromInt(500),
		PREMIUM: decimal.NewFromInt(800),
		XL:      decimal.NewFromInt(1000),
	}
	ratePerKm = map[string]decimal.Decimal{
		ECONOMY: decimal.NewFromInt(100),
		PREMIUM: decimal.NewFromInt(120),
		XL:      decimal.NewFromInt(150),
	}
)

// RidesService is the lifecycle engine. It is the single writer of ride
// status; every mutation runs under the repo's per-ride lock and every
// successful transition is published after commit, never inside it.
type RidesService struct {
	mylog  mylogger.Logger
	repo   ports.IRidesRepo
	bus    ports.IBus
	wallet ports.IWalletService
}

func NewRidesService(log mylogger.Logger, repo ports.IRidesRepo, bus ports.IBus, wallet ports.IWalletService) *RidesService {
	return &RidesService{
		mylog:  log,
		repo:   repo,
		bus:    bus,
		wallet: wallet,
	}
}

var _ ports.IRidesService = (*RidesService)(nil)

func (rs *RidesService) CreateRide(ctx context.Context, req dto.RideRequestDto) (*model.Ride, error) {
	log := rs.mylog.Action("CreateRide")

	if err := validateRideRequest(req); err != nil {
		return nil, err
	}

	category := ECONOMY
	if req.Category != nil && *req.Category != "" {
		category = strings.ToLower(*req.Category)
		if _, ok := baseFare[category]; !ok {
			return nil, myerrors.Validation("category", fmt.Sprintf("unknown ride category %q", category))
		}
	}

	paymentMethod := model.PaymentMethodWallet
	if req.PaymentMethod != nil && *req.PaymentMethod != "" {
		paymentMethod = *req.PaymentMethod
		if paymentMethod != model.PaymentMethodWallet && paymentMethod != model.PaymentMethodCash {
			return nil, myerrors.Validation("payment_method", "must be wallet or cash")
		}
	}

	distance := geo.Haversine(*req.PickUpLatitude, *req.PickUpLongitude, *req.DestinationLatitude, *req.DestinationLongitude)

	var quoted decimal.Decimal
	if req.QuotedPrice != nil && *req.QuotedPrice != "" {
		q, err := decimal.NewFromString(*req.QuotedPrice)
		if err != nil || !q.IsPositive() {
			return nil, myerrors.Validation("quoted_price", "must be a positive decimal")
		}
		quoted = q
	} else {
		quoted = baseFare[category].Add(ratePerKm[category].Mul(decimal.NewFromFloat(distance))).Round(2)
	}

	now := time.Now()
	ride := &model.Ride{
		ID:          uuid.NewString(),
		RequesterID: *req.RequesterID,
		Origin: model.Location{
			Latitude:  *req.PickUpLatitude,
			Longitude: *req.PickUpLongitude,
			Address:   *req.PickUpAddress,
		},
		Destination: model.Location{
			Latitude:  *req.DestinationLatitude,
			Longitude: *req.DestinationLongitude,
			Address:   *req.DestinationAddress,
		},
		Status:          model.StatusSearching,
		Category:        category,
		PaymentMethod:   paymentMethod,
		PaymentStatus:   model.PaymentUnpaid,
		QuotedPrice:     quoted,
		NegotiatedPrice: quoted,
		FinalPrice:      quoted,
		RequestedAt:     now,
	}

	if err := rs.repo.CreateRide(ctx, ride); err != nil {
		log.Error("cannot create ride", err, "requester_id", ride.RequesterID)
		return nil, err
	}
	observability.RidesCreatedTotal.Inc()

	log.Info("ride created", "ride_id", ride.ID, "requester_id", ride.RequesterID, "quoted_price", quoted.StringFixed(2), "distance_km", distance)
	return ride, nil
}

func (rs *RidesService) GetRide(ctx context.Context, rideID string) (*model.Ride, error) {
	return rs.repo.FindByRideId(ctx, rideID)
}

// Accept resolves the race between drivers answering the same offer. The
// check and the write happen under the same per-ride lock, so at most one
// caller ever sees status == searching; everyone else gets ErrConflict.
func (rs *RidesService) Accept(ctx context.Context, rideID, driverID string, finalPrice decimal.Decimal) (*model.Ride, error) {
	log := rs.mylog.Action("Accept")
	if driverID == "" {
		return nil, myerrors.Validation("driver_id", "required")
	}

	var accepted *model.Ride
	err := rs.repo.WithRideLock(ctx, rideID, func(r *model.Ride) error {
		if r.Status != model.StatusSearching {
			return fmt.Errorf("ride %s already %s: %w", r.ID, r.Status, myerrors.ErrConflict)
		}
		now := time.Now()
		r.DriverID = driverID
		r.Status = model.StatusAccepted
		r.AcceptedAt = &now
		if finalPrice.IsPositive() {
			r.NegotiatedPrice = finalPrice
			r.FinalPrice = finalPrice
		}
		c := *r
		accepted = &c
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.MatchesTotal.Inc()
	log.Info("ride matched", "ride_id", rideID, "driver_id", driverID, "final_price", accepted.FinalPrice.StringFixed(2))
	rs.publishStatus(accepted)
	return accepted, nil
}

func (rs *RidesService) Advance(ctx context.Context, rideID string, caller dto.Principal, target model.RideStatus) (*model.Ride, error) {
	log := rs.mylog.Action("Advance")
	if !model.ValidStatus(target) {
		return nil, myerrors.Validation("status", fmt.Sprintf("unknown status %q", target))
	}

	var (
		result *model.Ride
		noop   bool
	)
	err := rs.repo.WithRideLock(ctx, rideID, func(r *model.Ride) error {
		if err := authorizeParty(r, caller); err != nil {
			return err
		}
		if r.Status.Terminal() {
			// retried terminal transitions are a no-op, not an error
			if r.Status == target {
				noop = true
				c := *r
				result = &c
				return nil
			}
			return fmt.Errorf("ride %s is %s: %w", r.ID, r.Status, myerrors.ErrConflict)
		}
		if !r.Status.CanAdvanceTo(target) {
			return fmt.Errorf("illegal transition %s -> %s: %w", r.Status, target, myerrors.ErrConflict)
		}

		now := time.Now()
		r.Status = target
		switch target {
		case model.StatusArrived:
			r.ArrivedAt = &now
		case model.StatusOngoing:
			r.StartedAt = &now
		case model.StatusCompleted:
			r.CompletedAt = &now
		}
		c := *r
		result = &c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !noop {
		rs.publishStatus(result)
		log.Info("ride advanced", "ride_id", rideID, "status", result.Status)
	}

	// Settlement is triggered by the transition into completed and retried
	// through the terminal no-op path until the ledger accepts it. The
	// ledger references derive from the ride id, so retries are idempotent.
	if result.Status == model.StatusCompleted && result.PaymentStatus != model.PaymentPaid {
		if err := rs.settle(ctx, result); err != nil {
			log.Error("settlement failed, ride stays completed and unpaid", err, "ride_id", rideID)
			return result, fmt.Errorf("settle ride %s: %w", rideID, err)
		}
		result.PaymentStatus = model.PaymentPaid
	}

	return result, nil
}

func (rs *RidesService) settle(ctx context.Context, ride *model.Ride) error {
	if err := rs.wallet.SettleRide(ctx, ride); err != nil {
		return err
	}
	return rs.repo.WithRideLock(ctx, ride.ID, func(r *model.Ride) error {
		r.PaymentStatus = model.PaymentPaid
		return nil
	})
}

func (rs *RidesService) Cancel(ctx context.Context, rideID string, actor dto.Principal, reason string) (*model.Ride, error) {
	log := rs.mylog.Action("Cancel")

	var (
		result *model.Ride
		noop   bool
	)
	err := rs.repo.WithRideLock(ctx, rideID, func(r *model.Ride) error {
		if err := authorizeParty(r, actor); err != nil {
			return err
		}
		if r.Status == model.StatusCancelled {
			noop = true
			c := *r
			result = &c
			return nil
		}
		if r.Status == model.StatusCompleted {
			return fmt.Errorf("ride %s already completed: %w", r.ID, myerrors.ErrConflict)
		}

		now := time.Now()
		r.Status = model.StatusCancelled
		r.CancelledAt = &now
		r.CancelledBy = actor.Role
		r.CancellationReason = reason
		c := *r
		result = &c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !noop {
		rs.publishStatus(result)
		log.Info("ride cancelled", "ride_id", rideID, "actor", actor.Role, "reason", reason)
	}
	return result, nil
}

// CancelExpiredSearch reaps a ride whose search outlived the timeout. The
// status re-check runs under the per-ride lock, so a ride accepted after
// the caller listed it as stale comes back ErrConflict instead of being
// cancelled.
func (rs *RidesService) CancelExpiredSearch(ctx context.Context, rideID, reason string) (*model.Ride, error) {
	log := rs.mylog.Action("CancelExpiredSearch")

	var result *model.Ride
	err := rs.repo.WithRideLock(ctx, rideID, func(r *model.Ride) error {
		if r.Status != model.StatusSearching {
			return fmt.Errorf("ride %s already %s: %w", r.ID, r.Status, myerrors.ErrConflict)
		}
		now := time.Now()
		r.Status = model.StatusCancelled
		r.CancelledAt = &now
		r.CancelledBy = dto.RoleSystem
		r.CancellationReason = reason
		c := *r
		result = &c
		return nil
	})
	if err != nil {
		return nil, err
	}

	rs.publishStatus(result)
	log.Info("search expired", "ride_id", rideID, "reason", reason)
	return result, nil
}

// publishStatus fans the transition out to the ride room and to both
// participants' user rooms.
func (rs *RidesService) publishStatus(r *model.Ride) {
	ev := event.New(event.TypeRideStatus, event.StatusChanged(r))
	rs.bus.Publish(event.RideRoom(r.ID), ev)
	rs.bus.Publish(event.UserRoom(r.RequesterID), ev)
	if r.DriverID != "" {
		rs.bus.Publish(event.UserRoom(r.DriverID), ev)
	}
}

func authorizeParty(r *model.Ride, p dto.Principal) error {
	if p.IsAdmin() {
		return nil
	}
	if p.UserID != "" && (p.UserID == r.RequesterID || p.UserID == r.DriverID) {
		return nil
	}
	return fmt.Errorf("caller %s is not a party to ride %s: %w", p.UserID, r.ID, myerrors.ErrUnauthorized)
}

func validateRideRequest(req dto.RideRequestDto) error {
	if req.RequesterID == nil || *req.RequesterID == "" {
		return myerrors.Validation("requester_id", "required")
	}
	if req.PickUpLatitude == nil || req.PickUpLongitude == nil {
		return myerrors.Validation("pickup", "coordinates required")
	}
	if err := geo.ValidateCoords(*req.PickUpLatitude, *req.PickUpLongitude); err != nil {
		return err
	}
	if req.DestinationLatitude == nil || req.DestinationLongitude == nil {
		return myerrors.Validation("destination", "coordinates required")
	}
	if err := geo.ValidateCoords(*req.DestinationLatitude, *req.DestinationLongitude); err != nil {
		return err
	}
	if req.PickUpAddress == nil || len(*req.PickUpAddress) > 255 {
		return myerrors.Validation("pickup_address", "required, at most 255 characters")
	}
	if req.DestinationAddress == nil || len(*req.DestinationAddress) > 255 {
		return myerrors.Validation("destination_address", "required, at most 255 characters")
	}
	return nil
}
