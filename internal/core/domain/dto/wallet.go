package dto

import (
	"time"

	"ridelink/internal/core/domain/model"
)

type TransferRequestDto struct {
	SenderID       *string `json:"sender_id"`
	ReceiverID     *string `json:"receiver_id"`
	Amount         *string `json:"amount"`
	IdempotencyKey *string `json:"idempotency_key"`
	Type           *string `json:"type"`
}

type TransferResponseDto struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	Amount          string `json:"amount"`
	SenderBalance   string `json:"sender_balance"`
	ReceiverBalance string `json:"receiver_balance"`
	CreatedAt       string `json:"created_at"`
}

type BalanceResponseDto struct {
	UserID  string `json:"user_id"`
	Balance string `json:"balance"`
	Status  string `json:"status"`
}

func FromEntry(e *model.LedgerEntry) TransferResponseDto {
	return TransferResponseDto{
		Reference:       e.Reference,
		Status:          e.Status,
		Amount:          e.Amount.StringFixed(2),
		SenderBalance:   e.SenderBalance.StringFixed(2),
		ReceiverBalance: e.ReceiverBalance.StringFixed(2),
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
	}
}
