package handle

import (
	"encoding/json"
	"errors"
	"net/http"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/myerrors"
)

// JsonResponse writes the given data as a JSON-encoded HTTP response.
func JsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// JsonError writes an error response as JSON with the specified HTTP status code.
func JsonError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}

// Fail maps a service error onto the right HTTP status. Internal detail is
// not surfaced for unclassified errors.
func Fail(w http.ResponseWriter, err error) {
	switch {
	case myerrors.IsValidation(err):
		JsonError(w, http.StatusBadRequest, err)
	case errors.Is(err, myerrors.ErrNotFound):
		JsonError(w, http.StatusNotFound, err)
	case errors.Is(err, myerrors.ErrConflict):
		JsonError(w, http.StatusConflict, err)
	case errors.Is(err, myerrors.ErrInsufficientFunds),
		errors.Is(err, myerrors.ErrLimitExceeded):
		JsonError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, myerrors.ErrUnauthorized):
		JsonError(w, http.StatusForbidden, err)
	case errors.Is(err, myerrors.ErrTimeout):
		JsonError(w, http.StatusGatewayTimeout, err)
	default:
		JsonError(w, http.StatusInternalServerError, errors.New("internal error, please try again later"))
	}
}

// PrincipalFrom reads the identity the auth middleware attached.
func PrincipalFrom(r *http.Request) dto.Principal {
	return dto.Principal{
		UserID: r.Header.Get("X-UserId"),
		Role:   r.Header.Get("X-Role"),
	}
}
