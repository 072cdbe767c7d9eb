package handle

import (
	"encoding/json"
	"net/http"
	"time"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"
)

type DriverHandler struct {
	drivers ports.IDriverService
	log     mylogger.Logger
}

func NewDriverHandler(drivers ports.IDriverService, log mylogger.Logger) *DriverHandler {
	return &DriverHandler{
		drivers: drivers,
		log:     log,
	}
}

func (dh *DriverHandler) GoOnline() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := dto.PresenceDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		p := PrincipalFrom(r)
		req.DriverID = &p.UserID

		if err := dh.drivers.GoOnline(r.Context(), req); err != nil {
			Fail(w, err)
			return
		}
		JsonResponse(w, http.StatusOK, map[string]string{"status": "online"})
	}
}

func (dh *DriverHandler) GoOffline() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFrom(r)
		if err := dh.drivers.GoOffline(r.Context(), p.UserID); err != nil {
			Fail(w, err)
			return
		}
		JsonResponse(w, http.StatusOK, map[string]string{"status": "offline"})
	}
}

func (dh *DriverHandler) UpdateLocation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := dto.LocationUpdateDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		p := PrincipalFrom(r)
		req.DriverID = &p.UserID

		if err := dh.drivers.UpdateLocation(r.Context(), req); err != nil {
			Fail(w, err)
			return
		}
		JsonResponse(w, http.StatusOK, dto.LocationUpdateResponseDto{
			DriverID:  p.UserID,
			UpdatedAt: time.Now().Format(time.RFC3339),
		})
	}
}
