package handle

import (
	"encoding/json"
	"net/http"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"
)

type RidesHandler struct {
	rides    ports.IRidesService
	dispatch ports.IDispatchService
	log      mylogger.Logger
}

func NewRidesHandler(rides ports.IRidesService, dispatch ports.IDispatchService, log mylogger.Logger) *RidesHandler {
	return &RidesHandler{
		rides:    rides,
		dispatch: dispatch,
		log:      log,
	}
}

func (rh *RidesHandler) CreateRide() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := dto.RideRequestDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}

		// requester identity always comes from the verified principal
		p := PrincipalFrom(r)
		req.RequesterID = &p.UserID

		ride, candidates, err := rh.dispatch.RequestRide(r.Context(), req)
		if err != nil {
			Fail(w, err)
			return
		}

		res := dto.FromRide(ride)
		res.Candidates = candidates
		if candidates == 0 {
			res.Message = "no drivers available, still searching"
		}
		JsonResponse(w, http.StatusCreated, res)
	}
}

func (rh *RidesHandler) GetRide() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ride, err := rh.rides.GetRide(r.Context(), r.PathValue("ride_id"))
		if err != nil {
			Fail(w, err)
			return
		}
		JsonResponse(w, http.StatusOK, dto.FromRide(ride))
	}
}

func (rh *RidesHandler) AcceptRide() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := dto.RideAcceptDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		rideID := r.PathValue("ride_id")
		req.RideID = &rideID
		p := PrincipalFrom(r)
		req.DriverID = &p.UserID

		ride, err := rh.dispatch.Accept(r.Context(), req)
		if err != nil {
			Fail(w, err)
			return
		}
		JsonResponse(w, http.StatusOK, dto.FromRide(ride))
	}
}

func (rh *RidesHandler) AdvanceRide() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := dto.RideAdvanceDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		if req.Status == nil {
			Fail(w, myerrors.Validation("status", "required"))
			return
		}

		ride, err := rh.rides.Advance(r.Context(), r.PathValue("ride_id"), PrincipalFrom(r), model.RideStatus(*req.Status))
		if err != nil {
			Fail(w, err)
			return
		}
		JsonResponse(w, http.StatusOK, dto.FromRide(ride))
	}
}

func (rh *RidesHandler) CancelRide() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := dto.RideCancelDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		reason := ""
		if req.Reason != nil {
			reason = *req.Reason
		}

		ride, err := rh.rides.Cancel(r.Context(), r.PathValue("ride_id"), PrincipalFrom(r), reason)
		if err != nil {
			Fail(w, err)
			return
		}
		JsonResponse(w, http.StatusOK, dto.FromRide(ride))
	}
}

func (rh *RidesHandler) CounterOffer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := dto.CounterOfferDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		rideID := r.PathValue("ride_id")
		req.RideID = &rideID
		p := PrincipalFrom(r)
		req.DriverID = &p.UserID

		if err := rh.dispatch.ProposeCounterOffer(r.Context(), req); err != nil {
			Fail(w, err)
			return
		}
		JsonResponse(w, http.StatusAccepted, map[string]string{"status": "offered"})
	}
}
