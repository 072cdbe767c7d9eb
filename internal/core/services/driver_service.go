package services

import (
	"context"
	"sync"
	"time"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"
	"ridelink/internal/observability"
)

// DriverService ingests presence and location pings. A ping refreshes the
// directory, streams the position to the driver's active ride room, and
// for idle drivers triggers passive re-matching.
type DriverService struct {
	mylog     mylogger.Logger
	directory ports.IDriverDirectory
	ridesRepo ports.IRidesRepo
	dispatch  ports.IDispatchService
	bus       ports.IBus

	mu     sync.Mutex
	online map[string]struct{}
}

func NewDriverService(log mylogger.Logger, dir ports.IDriverDirectory, ridesRepo ports.IRidesRepo, dispatch ports.IDispatchService, bus ports.IBus) *DriverService {
	return &DriverService{
		mylog:     log,
		directory: dir,
		ridesRepo: ridesRepo,
		dispatch:  dispatch,
		bus:       bus,
		online:    make(map[string]struct{}),
	}
}

var _ ports.IDriverService = (*DriverService)(nil)

func (ds *DriverService) GoOnline(ctx context.Context, req dto.PresenceDto) error {
	log := ds.mylog.Action("GoOnline")
	if req.DriverID == nil || *req.DriverID == "" {
		return myerrors.Validation("driver_id", "required")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return myerrors.Validation("location", "coordinates required")
	}

	pos := model.DriverPosition{
		DriverID:     *req.DriverID,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		Availability: model.DriverAvailable,
		UpdatedAt:    time.Now(),
	}
	if req.ChannelAddr != nil {
		pos.ChannelAddr = *req.ChannelAddr
	}
	if err := ds.directory.Upsert(ctx, pos); err != nil {
		return err
	}
	// presence pings repeat; the gauge only moves on a real transition
	if ds.markOnline(pos.DriverID) {
		observability.DriversOnline.Inc()
	}
	log.Info("driver online", "driver_id", pos.DriverID)

	// a driver coming online may unblock rides that found nobody earlier
	if _, err := ds.dispatch.RematchNearby(ctx, pos.DriverID, pos.Latitude, pos.Longitude); err != nil {
		log.Error("rematch after going online failed", err, "driver_id", pos.DriverID)
	}
	return nil
}

func (ds *DriverService) GoOffline(ctx context.Context, driverID string) error {
	if driverID == "" {
		return myerrors.Validation("driver_id", "required")
	}
	if err := ds.directory.SetAvailability(ctx, driverID, model.DriverOffline); err != nil {
		return err
	}
	if ds.markOffline(driverID) {
		observability.DriversOnline.Dec()
	}
	ds.mylog.Action("GoOffline").Info("driver offline", "driver_id", driverID)
	return nil
}

// markOnline reports whether the driver was not counted online before.
func (ds *DriverService) markOnline(driverID string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if _, ok := ds.online[driverID]; ok {
		return false
	}
	ds.online[driverID] = struct{}{}
	return true
}

func (ds *DriverService) markOffline(driverID string) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if _, ok := ds.online[driverID]; !ok {
		return false
	}
	delete(ds.online, driverID)
	return true
}

func (ds *DriverService) UpdateLocation(ctx context.Context, req dto.LocationUpdateDto) error {
	log := ds.mylog.Action("UpdateLocation")
	if req.DriverID == nil || *req.DriverID == "" {
		return myerrors.Validation("driver_id", "required")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return myerrors.Validation("location", "coordinates required")
	}

	pos := model.DriverPosition{
		DriverID:     *req.DriverID,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		Availability: model.DriverAvailable,
		UpdatedAt:    time.Now(),
	}
	if req.Heading != nil {
		pos.Heading = *req.Heading
	}

	rideID, err := ds.ridesRepo.ActiveRideIDForDriver(ctx, pos.DriverID)
	if err != nil {
		return err
	}
	if rideID != "" {
		pos.Availability = model.DriverBusy
	}

	if err := ds.directory.Upsert(ctx, pos); err != nil {
		return err
	}

	if rideID != "" {
		ds.bus.Publish(event.RideRoom(rideID), event.New(event.TypeLocationUpdate, event.LocationUpdatePayload{
			DriverID:  pos.DriverID,
			Latitude:  pos.Latitude,
			Longitude: pos.Longitude,
			Heading:   pos.Heading,
			Timestamp: pos.UpdatedAt.Format(time.RFC3339),
		}))
		return nil
	}

	// idle driver: the ping doubles as a passive matching trigger
	if n, err := ds.dispatch.RematchNearby(ctx, pos.DriverID, pos.Latitude, pos.Longitude); err != nil {
		log.Error("passive rematch failed", err, "driver_id", pos.DriverID)
	} else if n > 0 {
		log.Info("re-offered open rides", "driver_id", pos.DriverID, "offers", n)
	}
	return nil
}
