package services

import (
	"context"
	"errors"
	"fmt"
	"time"

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

const rematchBatch = 50

type DispatchConfig struct {
	SearchRadiusKm float64
	CandidateLimit int
	SearchTimeout  time.Duration
	SweepInterval  time.Duration
}

// DispatchService orchestrates matching: it fans offers out to nearby
// drivers, resolves acceptance races through the lifecycle engine and
// reaps rides that searched for too long.
type DispatchService struct {
	mylog     mylogger.Logger
	rides     ports.IRidesService
	repo      ports.IRidesRepo
	directory ports.IDriverDirectory
	bus       ports.IBus
	cfg       DispatchConfig
}

func NewDispatchService(log mylogger.Logger, rides ports.IRidesService, repo ports.IRidesRepo, dir ports.IDriverDirectory, bus ports.IBus, cfg DispatchConfig) *DispatchService {
	return &DispatchService{
		mylog:     log,
		rides:     rides,
		repo:      repo,
		directory: dir,
		bus:       bus,
		cfg:       cfg,
	}
}

var _ ports.IDispatchService = (*DispatchService)(nil)

// RequestRide creates the ride and offers it to every candidate within the
// search radius. Zero candidates is not an error: the requester is told and
// the ride stays searching for passive re-matching (see RematchNearby).
func (ds *DispatchService) RequestRide(ctx context.Context, req dto.RideRequestDto) (*model.Ride, int, error) {
	log := ds.mylog.Action("RequestRide")

	ride, err := ds.rides.CreateRide(ctx, req)
	if err != nil {
		return nil, 0, err
	}

	candidates, err := ds.directory.Nearby(ctx, ride.Origin.Latitude, ride.Origin.Longitude, ds.cfg.SearchRadiusKm, ds.cfg.CandidateLimit)
	if err != nil {
		// directory failure degrades to "no candidates now"; the ride is
		// still open for passive matching
		log.Error("directory query failed", err, "ride_id", ride.ID)
		candidates = nil
	}

	if len(candidates) == 0 {
		ds.bus.Publish(event.UserRoom(ride.RequesterID), event.New(event.TypeRideNoDrivers, event.NoDriversPayload{
			RideID:  ride.ID,
			Message: "no drivers available, still searching",
		}))
		log.Info("no candidates found", "ride_id", ride.ID)
		return ride, 0, nil
	}

	for _, c := range candidates {
		ds.bus.Publish(event.UserRoom(c.DriverID), event.New(event.TypeRideOpportunity, event.OpportunityPayload{
			Ride:       event.Snapshot(ride),
			DistanceKm: c.DistanceKm,
		}))
	}
	log.Info("offers published", "ride_id", ride.ID, "candidates", len(candidates))
	return ride, len(candidates), nil
}

// Accept is the tie-break: whoever wins the per-ride guard first wins the
// ride, regardless of distance or price. Losers get ride.conflict on their
// own room only; losing the race is normal operation, not an anomaly.
func (ds *DispatchService) Accept(ctx context.Context, req dto.RideAcceptDto) (*model.Ride, error) {
	if req.RideID == nil || *req.RideID == "" {
		return nil, myerrors.Validation("ride_id", "required")
	}
	if req.DriverID == nil || *req.DriverID == "" {
		return nil, myerrors.Validation("driver_id", "required")
	}

	finalPrice := decimal.Zero
	if req.FinalPrice != nil && *req.FinalPrice != "" {
		p, err := decimal.NewFromString(*req.FinalPrice)
		if err != nil || !p.IsPositive() {
			return nil, myerrors.Validation("final_price", "must be a positive decimal")
		}
		finalPrice = p
	}

	ride, err := ds.rides.Accept(ctx, *req.RideID, *req.DriverID, finalPrice)
	if errors.Is(err, myerrors.ErrConflict) {
		observability.AcceptConflictsTotal.Inc()
		ds.bus.Publish(event.UserRoom(*req.DriverID), event.New(event.TypeRideConflict, event.ConflictPayload{
			RideID: *req.RideID,
			Reason: "ride already matched",
		}))
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err := ds.directory.SetAvailability(ctx, ride.DriverID, model.DriverBusy); err != nil && !errors.Is(err, myerrors.ErrNotFound) {
		ds.mylog.Action("Accept").Warn("cannot mark driver busy", "driver_id", ride.DriverID)
	}

	ev := event.New(event.TypeRideAccepted, event.Snapshot(ride))
	ds.bus.Publish(event.RideRoom(ride.ID), ev)
	ds.bus.Publish(event.UserRoom(ride.RequesterID), ev)
	ds.bus.Publish(event.UserRoom(ride.DriverID), ev)
	return ride, nil
}

// ProposeCounterOffer appends to the negotiation history and republishes.
// Status is untouched; only Accept assigns the ride.
func (ds *DispatchService) ProposeCounterOffer(ctx context.Context, req dto.CounterOfferDto) error {
	if req.RideID == nil || *req.RideID == "" {
		return myerrors.Validation("ride_id", "required")
	}
	if req.DriverID == nil || *req.DriverID == "" {
		return myerrors.Validation("driver_id", "required")
	}
	if req.Price == nil {
		return myerrors.Validation("price", "required")
	}
	price, err := decimal.NewFromString(*req.Price)
	if err != nil || !price.IsPositive() {
		return myerrors.Validation("price", "must be a positive decimal")
	}

	ride, err := ds.rides.GetRide(ctx, *req.RideID)
	if err != nil {
		return err
	}
	if ride.Status != model.StatusSearching {
		return fmt.Errorf("ride %s already %s: %w", ride.ID, ride.Status, myerrors.ErrConflict)
	}

	offer := model.Offer{DriverID: *req.DriverID, Price: price, CreatedAt: time.Now()}
	if err := ds.repo.AppendOffer(ctx, ride.ID, offer); err != nil {
		return err
	}

	payload := event.CounterOfferPayload{
		RideID:    ride.ID,
		DriverID:  offer.DriverID,
		Price:     price.StringFixed(2),
		Timestamp: offer.CreatedAt.Format(time.RFC3339),
	}
	ev := event.New(event.TypeCounterOffer, payload)
	ds.bus.Publish(event.RideRoom(ride.ID), ev)
	ds.bus.Publish(event.UserRoom(ride.RequesterID), ev)
	return nil
}

// RematchNearby re-offers open searching rides to a driver that just
// reported a position. This is the passive half of matching: a ride that
// found no drivers at request time gets picked up by whoever drives into
// range later.
func (ds *DispatchService) RematchNearby(ctx context.Context, driverID string, lat, lng float64) (int, error) {
	open, err := ds.repo.OpenSearching(ctx, rematchBatch)
	if err != nil {
		return 0, err
	}

	offered := 0
	for i := range open {
		r := &open[i]
		dist := geo.Haversine(r.Origin.Latitude, r.Origin.Longitude, lat, lng)
		if dist > ds.cfg.SearchRadiusKm {
			continue
		}
		ds.bus.Publish(event.UserRoom(driverID), event.New(event.TypeRideOpportunity, event.OpportunityPayload{
			Ride:       event.Snapshot(r),
			DistanceKm: dist,
		}))
		offered++
	}
	return offered, nil
}

// RunSweep cancels rides stuck in searching beyond the timeout. The cancel
// re-checks the status under the same per-ride guard Accept takes, so a
// ride that was accepted after the stale listing cannot be reaped.
func (ds *DispatchService) RunSweep(ctx context.Context) {
	log := ds.mylog.Action("RunSweep")
	t := time.NewTicker(ds.cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ds.sweepOnce(ctx, log)
		}
	}
}

func (ds *DispatchService) sweepOnce(ctx context.Context, log mylogger.Logger) {
	stale, err := ds.repo.SearchingSince(ctx, time.Now().Add(-ds.cfg.SearchTimeout))
	if err != nil {
		log.Error("cannot list stale searches", err)
		return
	}
	for i := range stale {
		_, err := ds.rides.CancelExpiredSearch(ctx, stale[i].ID, "search timed out")
		if errors.Is(err, myerrors.ErrConflict) {
			// lost the race to an accept, leave it alone
			continue
		}
		if err != nil {
			log.Error("sweep cancel failed", err, "ride_id", stale[i].ID)
			continue
		}
		observability.SweepCancelsTotal.Inc()
	}
	if len(stale) > 0 {
		log.Info("sweep finished", "expired", len(stale))
	}
}
