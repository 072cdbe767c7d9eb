package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// System account ids. The clearing account fronts fare collection and
// payouts, the platform account accumulates commissions.
var (
	ClearingAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001").String()
	PlatformAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000002").String()
)

type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountBlocked AccountStatus = "blocked"
)

// WalletAccount balances are mutated only through ledger entries.
type WalletAccount struct {
	UserID  string
	Balance decimal.Decimal

	// Floor is the minimum balance the account may reach. Zero for user
	// accounts; system accounts run a controlled negative floor.
	Floor decimal.Decimal

	// DailyLimit of zero means unlimited. DailyUsed resets when UsageDay
	// rolls over.
	DailyLimit decimal.Decimal
	DailyUsed  decimal.Decimal
	UsageDay   string

	Status AccountStatus
	System bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *WalletAccount) IsSystem() bool {
	return a.System
}

type EntryType string

const (
	EntryTransfer       EntryType = "transfer"
	EntryFareSettlement EntryType = "fare_settlement"
	EntryCommission     EntryType = "commission"
	EntryBonus          EntryType = "bonus"
)

const EntryCompleted = "completed"

// LedgerEntry is an append-only record of one balance movement. Reference
// is the caller-supplied idempotency key and is unique across all entries.
type LedgerEntry struct {
	ID        string
	Reference string

	SenderID   string
	ReceiverID string

	Amount decimal.Decimal
	Fee    decimal.Decimal
	Type   EntryType

	// Balance snapshots taken after the movement was applied.
	SenderBalance   decimal.Decimal
	ReceiverBalance decimal.Decimal

	Status    string
	CreatedAt time.Time
}
