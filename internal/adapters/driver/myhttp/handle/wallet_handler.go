package handle

import (
	"encoding/json"
	"net/http"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"
)

type WalletHandler struct {
	wallet ports.IWalletService
	log    mylogger.Logger
}

func NewWalletHandler(wallet ports.IWalletService, log mylogger.Logger) *WalletHandler {
	return &WalletHandler{
		wallet: wallet,
		log:    log,
	}
}

func (wh *WalletHandler) Transfer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := dto.TransferRequestDto{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			JsonError(w, http.StatusBadRequest, err)
			return
		}
		p := PrincipalFrom(r)
		req.SenderID = &p.UserID

		entry, err := wh.wallet.Transfer(r.Context(), req)
		if err != nil {
			Fail(w, err)
			return
		}
		JsonResponse(w, http.StatusOK, dto.FromEntry(entry))
	}
}

func (wh *WalletHandler) Balance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("user_id")
		p := PrincipalFrom(r)
		if p.UserID != userID && !p.IsAdmin() {
			Fail(w, myerrors.ErrUnauthorized)
			return
		}

		account, err := wh.wallet.Balance(r.Context(), userID)
		if err != nil {
			Fail(w, err)
			return
		}
		JsonResponse(w, http.StatusOK, dto.BalanceResponseDto{
			UserID:  account.UserID,
			Balance: account.Balance.StringFixed(2),
			Status:  string(account.Status),
		})
	}
}
