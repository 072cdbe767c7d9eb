package ws

import (
	"encoding/json"
	"errors"
	"strings"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"
)

type EventHandler struct {
	rides    ports.IRidesService
	dispatch ports.IDispatchService
	wallet   ports.IWalletService
	drivers  ports.IDriverService
	log      mylogger.Logger
}

func NewEventHandler(
	rides ports.IRidesService,
	dispatch ports.IDispatchService,
	wallet ports.IWalletService,
	drivers ports.IDriverService,
	log mylogger.Logger,
) *EventHandler {
	return &EventHandler{
		rides:    rides,
		dispatch: dispatch,
		wallet:   wallet,
		drivers:  drivers,
		log:      log,
	}
}

// Route dispatches one inbound envelope. Outcomes flow back through the
// rooms the services publish to; only failures are answered directly.
func (eh *EventHandler) Route(c *Client, e event.Event) {
	var err error
	switch e.Type {
	case event.TypeRideRequest:
		err = eh.handleRideRequest(c, e)
	case event.TypeRideAccept:
		err = eh.handleRideAccept(c, e)
	case event.TypeRideAdvance:
		err = eh.handleRideAdvance(c, e)
	case event.TypeRideCancel:
		err = eh.handleRideCancel(c, e)
	case event.TypeDriverLocation:
		err = eh.handleDriverLocation(c, e)
	case event.TypeCounterOffer:
		err = eh.handleCounterOffer(c, e)
	case event.TypeWalletTransfer:
		err = eh.handleWalletTransfer(c, e)
	case event.TypeSubscribe:
		err = eh.handleSubscribe(c, e)
	case event.TypeUnsubscribe:
		err = eh.handleUnsubscribe(c, e)
	default:
		c.sendError("UNKNOWN_TYPE", "unknown event type "+e.Type)
		return
	}
	if err != nil {
		c.sendError(errorCode(err), err.Error())
	}
}

func (eh *EventHandler) handleRideRequest(c *Client, e event.Event) error {
	var req dto.RideRequestDto
	if err := json.Unmarshal(e.Data, &req); err != nil {
		return myerrors.Validation("data", "malformed ride request")
	}
	req.RequesterID = &c.principal.UserID

	ride, _, err := eh.dispatch.RequestRide(c.ctx, req)
	if err != nil {
		return err
	}

	// the requester follows their ride from the moment it exists
	c.subscribe(event.RideRoom(ride.ID))
	c.send(event.New(event.TypeRideStatus, event.StatusChanged(ride)))
	return nil
}

func (eh *EventHandler) handleRideAccept(c *Client, e event.Event) error {
	var req dto.RideAcceptDto
	if err := json.Unmarshal(e.Data, &req); err != nil {
		return myerrors.Validation("data", "malformed accept")
	}
	req.DriverID = &c.principal.UserID

	ride, err := eh.dispatch.Accept(c.ctx, req)
	if err != nil {
		return err
	}
	c.subscribe(event.RideRoom(ride.ID))
	return nil
}

func (eh *EventHandler) handleRideAdvance(c *Client, e event.Event) error {
	var req dto.RideAdvanceDto
	if err := json.Unmarshal(e.Data, &req); err != nil {
		return myerrors.Validation("data", "malformed advance")
	}
	if req.RideID == nil || req.Status == nil {
		return myerrors.Validation("ride_id", "ride_id and status are required")
	}

	_, err := eh.rides.Advance(c.ctx, *req.RideID, c.principal, model.RideStatus(*req.Status))
	return err
}

func (eh *EventHandler) handleRideCancel(c *Client, e event.Event) error {
	var req dto.RideCancelDto
	if err := json.Unmarshal(e.Data, &req); err != nil {
		return myerrors.Validation("data", "malformed cancel")
	}
	if req.RideID == nil {
		return myerrors.Validation("ride_id", "ride_id is required")
	}
	reason := ""
	if req.Reason != nil {
		reason = *req.Reason
	}

	_, err := eh.rides.Cancel(c.ctx, *req.RideID, c.principal, reason)
	return err
}

func (eh *EventHandler) handleDriverLocation(c *Client, e event.Event) error {
	var req dto.LocationUpdateDto
	if err := json.Unmarshal(e.Data, &req); err != nil {
		return myerrors.Validation("data", "malformed location update")
	}
	req.DriverID = &c.principal.UserID

	return eh.drivers.UpdateLocation(c.ctx, req)
}

func (eh *EventHandler) handleCounterOffer(c *Client, e event.Event) error {
	var req dto.CounterOfferDto
	if err := json.Unmarshal(e.Data, &req); err != nil {
		return myerrors.Validation("data", "malformed counter offer")
	}
	req.DriverID = &c.principal.UserID

	return eh.dispatch.ProposeCounterOffer(c.ctx, req)
}

func (eh *EventHandler) handleWalletTransfer(c *Client, e event.Event) error {
	var req dto.TransferRequestDto
	if err := json.Unmarshal(e.Data, &req); err != nil {
		return myerrors.Validation("data", "malformed transfer")
	}
	req.SenderID = &c.principal.UserID

	_, err := eh.wallet.Transfer(c.ctx, req)
	return err
}

type roomRequest struct {
	Room string `json:"room"`
}

func (eh *EventHandler) handleSubscribe(c *Client, e event.Event) error {
	var req roomRequest
	if err := json.Unmarshal(e.Data, &req); err != nil || req.Room == "" {
		return myerrors.Validation("room", "room is required")
	}
	if err := eh.authorizeRoom(c, req.Room); err != nil {
		return err
	}
	c.subscribe(req.Room)
	return nil
}

func (eh *EventHandler) handleUnsubscribe(c *Client, e event.Event) error {
	var req roomRequest
	if err := json.Unmarshal(e.Data, &req); err != nil || req.Room == "" {
		return myerrors.Validation("room", "room is required")
	}
	c.unsubscribe(req.Room)
	return nil
}

// authorizeRoom keeps clients out of rooms they have no business in. A
// user room is only its owner's, a ride room belongs to the ride parties.
func (eh *EventHandler) authorizeRoom(c *Client, room string) error {
	if c.principal.IsAdmin() {
		return nil
	}
	switch {
	case strings.HasPrefix(room, "user:"):
		if room != event.UserRoom(c.principal.UserID) {
			return myerrors.ErrUnauthorized
		}
		return nil
	case strings.HasPrefix(room, "ride:"):
		rideID := strings.TrimPrefix(room, "ride:")
		ride, err := eh.rides.GetRide(c.ctx, rideID)
		if err != nil {
			return err
		}
		if ride.RequesterID != c.principal.UserID && ride.DriverID != c.principal.UserID {
			return myerrors.ErrUnauthorized
		}
		return nil
	default:
		return myerrors.Validation("room", "unknown room kind")
	}
}

func errorCode(err error) string {
	switch {
	case myerrors.IsValidation(err):
		return "VALIDATION"
	case errors.Is(err, myerrors.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, myerrors.ErrConflict):
		return "CONFLICT"
	case errors.Is(err, myerrors.ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, myerrors.ErrLimitExceeded):
		return "LIMIT_EXCEEDED"
	case errors.Is(err, myerrors.ErrUnauthorized):
		return "UNAUTHORIZED"
	default:
		return "INTERNAL"
	}
}
