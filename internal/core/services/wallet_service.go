package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/domain/event"
	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
	"ridelink/internal/mylogger"
	"ridelink/internal/observability"
)

const dayFormat = "2006-01-02"

// WalletService is the ledger engine. Balances move only through here:
// one atomic commit per transfer, idempotent by reference, accounts locked
// in deterministic order by the repo.
type WalletService struct {
	mylog          mylogger.Logger
	repo           ports.IWalletRepo
	bus            ports.IBus
	commissionRate decimal.Decimal
	defaultLimit   decimal.Decimal
}

func NewWalletService(log mylogger.Logger, repo ports.IWalletRepo, bus ports.IBus, commissionRate, defaultDailyLimit decimal.Decimal) *WalletService {
	return &WalletService{
		mylog:          log,
		repo:           repo,
		bus:            bus,
		commissionRate: commissionRate,
		defaultLimit:   defaultDailyLimit,
	}
}

var _ ports.IWalletService = (*WalletService)(nil)

func (ws *WalletService) Transfer(ctx context.Context, req dto.TransferRequestDto) (*model.LedgerEntry, error) {
	if req.SenderID == nil || *req.SenderID == "" {
		return nil, myerrors.Validation("sender_id", "required")
	}
	if req.ReceiverID == nil || *req.ReceiverID == "" {
		return nil, myerrors.Validation("receiver_id", "required")
	}
	if req.IdempotencyKey == nil || *req.IdempotencyKey == "" {
		return nil, myerrors.Validation("idempotency_key", "required")
	}
	if req.Amount == nil {
		return nil, myerrors.Validation("amount", "required")
	}
	amount, err := decimal.NewFromString(*req.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, myerrors.Validation("amount", "must be a positive decimal")
	}

	entryType := model.EntryTransfer
	if req.Type != nil && *req.Type != "" {
		entryType = model.EntryType(*req.Type)
		switch entryType {
		case model.EntryTransfer, model.EntryFareSettlement, model.EntryCommission, model.EntryBonus:
		default:
			return nil, myerrors.Validation("type", fmt.Sprintf("unknown entry type %q", entryType))
		}
	}

	entry, err := ws.transfer(ctx, *req.SenderID, *req.ReceiverID, amount, *req.IdempotencyKey, entryType)
	ws.publishResult(*req.SenderID, *req.ReceiverID, *req.IdempotencyKey, amount, err)
	return entry, err
}

// transfer applies one balance movement. Retrying with the same reference
// returns the original entry without touching balances again.
func (ws *WalletService) transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal, reference string, entryType model.EntryType) (*model.LedgerEntry, error) {
	log := ws.mylog.Action("Transfer")

	if senderID == receiverID {
		return nil, myerrors.Validation("receiver_id", "sender and receiver must differ")
	}

	prior, err := ws.repo.EntryByReference(ctx, reference)
	if err == nil {
		log.Info("replaying idempotent transfer", "reference", reference)
		return prior, nil
	}
	if !errors.Is(err, myerrors.ErrNotFound) {
		return nil, err
	}

	var entry *model.LedgerEntry
	err = ws.repo.WithAccountLock(ctx, []string{senderID, receiverID}, func(accounts map[string]*model.WalletAccount) (*model.LedgerEntry, error) {
		sender, ok := accounts[senderID]
		if !ok {
			return nil, fmt.Errorf("sender account %s: %w", senderID, myerrors.ErrNotFound)
		}
		receiver, ok := accounts[receiverID]
		if !ok {
			return nil, fmt.Errorf("receiver account %s: %w", receiverID, myerrors.ErrNotFound)
		}
		if sender.Status != model.AccountActive {
			return nil, fmt.Errorf("sender account blocked: %w", myerrors.ErrUnauthorized)
		}
		if receiver.Status != model.AccountActive {
			return nil, fmt.Errorf("receiver account blocked: %w", myerrors.ErrUnauthorized)
		}

		now := time.Now()
		day := now.Format(dayFormat)
		if sender.UsageDay != day {
			sender.UsageDay = day
			sender.DailyUsed = decimal.Zero
		}
		if !sender.IsSystem() && sender.DailyLimit.IsPositive() && sender.DailyUsed.Add(amount).GreaterThan(sender.DailyLimit) {
			return nil, fmt.Errorf("daily cap %s reached: %w", sender.DailyLimit.StringFixed(2), myerrors.ErrLimitExceeded)
		}

		newBalance := sender.Balance.Sub(amount)
		if newBalance.LessThan(sender.Floor) {
			return nil, fmt.Errorf("balance %s cannot cover %s: %w", sender.Balance.StringFixed(2), amount.StringFixed(2), myerrors.ErrInsufficientFunds)
		}

		sender.Balance = newBalance
		sender.DailyUsed = sender.DailyUsed.Add(amount)
		receiver.Balance = receiver.Balance.Add(amount)

		entry = &model.LedgerEntry{
			ID:              uuid.NewString(),
			Reference:       reference,
			SenderID:        senderID,
			ReceiverID:      receiverID,
			Amount:          amount,
			Fee:             decimal.Zero,
			Type:            entryType,
			SenderBalance:   sender.Balance,
			ReceiverBalance: receiver.Balance,
			Status:          model.EntryCompleted,
			CreatedAt:       now,
		}
		return entry, nil
	})
	if errors.Is(err, myerrors.ErrDuplicateReference) {
		// a concurrent retry won the insert, its entry is the result
		return ws.repo.EntryByReference(ctx, reference)
	}
	if err != nil {
		return nil, err
	}

	observability.TransfersTotal.Inc()
	log.Info("transfer completed", "reference", reference, "amount", amount.StringFixed(2), "type", string(entryType))
	return entry, nil
}

// SettleRide moves the fare once the lifecycle engine reports completion.
// All references derive from the ride id, so the whole settlement can be
// retried after a crash without double-paying anyone.
func (ws *WalletService) SettleRide(ctx context.Context, ride *model.Ride) error {
	log := ws.mylog.Action("SettleRide")

	if ride.DriverID == "" {
		return myerrors.Validation("driver_id", "ride has no assigned driver")
	}
	fare := ride.FinalPrice
	if !fare.IsPositive() {
		return myerrors.Validation("final_price", "must be positive to settle")
	}

	commission := fare.Mul(ws.commissionRate).Round(2)
	driverShare := fare.Sub(commission)

	if ride.PaymentMethod == model.PaymentMethodWallet {
		if _, err := ws.transfer(ctx, ride.RequesterID, model.ClearingAccountID, fare, settlementRef(ride.ID, "collect"), model.EntryFareSettlement); err != nil {
			return fmt.Errorf("collect fare: %w", err)
		}
	}
	if _, err := ws.transfer(ctx, model.ClearingAccountID, ride.DriverID, driverShare, settlementRef(ride.ID, "payout"), model.EntryFareSettlement); err != nil {
		return fmt.Errorf("pay driver: %w", err)
	}
	if _, err := ws.transfer(ctx, model.ClearingAccountID, model.PlatformAccountID, commission, settlementRef(ride.ID, "commission"), model.EntryCommission); err != nil {
		return fmt.Errorf("book commission: %w", err)
	}

	log.Info("ride settled", "ride_id", ride.ID, "driver_share", driverShare.StringFixed(2), "commission", commission.StringFixed(2))
	return nil
}

func (ws *WalletService) Balance(ctx context.Context, userID string) (*model.WalletAccount, error) {
	return ws.repo.Account(ctx, userID)
}

// EnsureAccount provisions a wallet with the configured daily limit. Used
// on signup and for the fixed system accounts at boot.
func (ws *WalletService) EnsureAccount(ctx context.Context, userID string, system bool) error {
	now := time.Now()
	a := &model.WalletAccount{
		UserID:     userID,
		Balance:    decimal.Zero,
		Floor:      decimal.Zero,
		DailyLimit: ws.defaultLimit,
		DailyUsed:  decimal.Zero,
		UsageDay:   now.Format(dayFormat),
		Status:     model.AccountActive,
		System:     system,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if system {
		// the clearing account fronts payouts before fares are collected
		a.Floor = decimal.NewFromInt(-1_000_000)
		a.DailyLimit = decimal.Zero
	}
	return ws.repo.CreateAccount(ctx, a)
}

func (ws *WalletService) publishResult(senderID, receiverID, reference string, amount decimal.Decimal, err error) {
	payload := event.TransferResultPayload{
		Success:   err == nil,
		Reference: reference,
		Amount:    amount.StringFixed(2),
	}
	if err != nil {
		payload.ErrorCode = errorCode(err)
		payload.Amount = ""
	}
	ev := event.New(event.TypeTransferResult, payload)
	ws.bus.Publish(event.UserRoom(senderID), ev)
	if err == nil {
		ws.bus.Publish(event.UserRoom(receiverID), ev)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, myerrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, myerrors.ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, myerrors.ErrNotFound):
		return "not_found"
	case errors.Is(err, myerrors.ErrUnauthorized):
		return "unauthorized"
	case myerrors.IsValidation(err):
		return "validation"
	default:
		return "internal"
	}
}

func settlementRef(rideID, leg string) string {
	return fmt.Sprintf("settle:%s:%s", rideID, leg)
}
