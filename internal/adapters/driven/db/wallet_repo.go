package db

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
)

const uniqueViolation = "23505"

type WalletRepo struct {
	db *DB
}

func NewWalletRepo(db *DB) ports.IWalletRepo {
	return &WalletRepo{db: db}
}

const accountColumns = `
	user_id,
	balance::text,
	floor_balance::text,
	daily_limit::text,
	daily_used::text,
	usage_day::text,
	status,
	is_system,
	created_at,
	updated_at`

func (wr *WalletRepo) Account(ctx context.Context, userID string) (*model.WalletAccount, error) {
	q := `SELECT ` + accountColumns + ` FROM wallet_accounts WHERE user_id = $1`
	return scanAccount(wr.db.Pool().QueryRow(ctx, q, userID))
}

func (wr *WalletRepo) CreateAccount(ctx context.Context, a *model.WalletAccount) error {
	q := `INSERT INTO wallet_accounts(user_id, balance, floor_balance, daily_limit, daily_used, usage_day, status, is_system)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO NOTHING`
	_, err := wr.db.Pool().Exec(ctx, q,
		a.UserID,
		a.Balance.String(),
		a.Floor.String(),
		a.DailyLimit.String(),
		a.DailyUsed.String(),
		a.UsageDay,
		string(a.Status),
		a.System,
	)
	return err
}

func (wr *WalletRepo) EntryByReference(ctx context.Context, ref string) (*model.LedgerEntry, error) {
	q := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE reference = $1`
	return scanEntry(wr.db.Pool().QueryRow(ctx, q, ref))
}

// WithAccountLock locks the accounts in ascending id order inside one
// transaction. Deterministic ordering is what prevents deadlock between
// transfers over the same account pair in opposite directions.
func (wr *WalletRepo) WithAccountLock(ctx context.Context, ids []string, fn func(accounts map[string]*model.WalletAccount) (*model.LedgerEntry, error)) error {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	tx, err := wr.db.Pool().BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // Safe rollback if not committed

	accounts := make(map[string]*model.WalletAccount, len(sorted))
	q := `SELECT ` + accountColumns + ` FROM wallet_accounts WHERE user_id = $1 FOR UPDATE`
	for _, id := range sorted {
		a, err := scanAccount(tx.QueryRow(ctx, q, id))
		if err != nil {
			return err
		}
		accounts[id] = a
	}

	entry, err := fn(accounts)
	if err != nil {
		return err
	}

	update := `UPDATE wallet_accounts
		SET balance = $2, daily_used = $3, usage_day = $4, updated_at = NOW()
		WHERE user_id = $1`
	for _, a := range accounts {
		if _, err := tx.Exec(ctx, update, a.UserID, a.Balance.String(), a.DailyUsed.String(), a.UsageDay); err != nil {
			return err
		}
	}

	insert := `INSERT INTO ledger_entries(
			entry_id, reference, sender_id, receiver_id, amount, fee, entry_type,
			sender_balance, receiver_balance, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = tx.Exec(ctx, insert,
		entry.ID,
		entry.Reference,
		entry.SenderID,
		entry.ReceiverID,
		entry.Amount.String(),
		entry.Fee.String(),
		string(entry.Type),
		entry.SenderBalance.String(),
		entry.ReceiverBalance.String(),
		entry.Status,
		entry.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return myerrors.ErrDuplicateReference
		}
		return err
	}

	return tx.Commit(ctx)
}

const entryColumns = `
	entry_id,
	reference,
	sender_id,
	receiver_id,
	amount::text,
	fee::text,
	entry_type,
	sender_balance::text,
	receiver_balance::text,
	status,
	created_at`

func scanAccount(row rowScanner) (*model.WalletAccount, error) {
	var (
		a       model.WalletAccount
		balance string
		floor   string
		limit   string
		used    string
		status  string
	)
	err := row.Scan(
		&a.UserID,
		&balance,
		&floor,
		&limit,
		&used,
		&a.UsageDay,
		&status,
		&a.System,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, myerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Status = model.AccountStatus(status)
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("malformed balance: %w", err)
	}
	if a.Floor, err = decimal.NewFromString(floor); err != nil {
		return nil, fmt.Errorf("malformed floor_balance: %w", err)
	}
	if a.DailyLimit, err = decimal.NewFromString(limit); err != nil {
		return nil, fmt.Errorf("malformed daily_limit: %w", err)
	}
	if a.DailyUsed, err = decimal.NewFromString(used); err != nil {
		return nil, fmt.Errorf("malformed daily_used: %w", err)
	}
	return &a, nil
}

func scanEntry(row rowScanner) (*model.LedgerEntry, error) {
	var (
		e         model.LedgerEntry
		amount    string
		fee       string
		entryType string
		senderBal string
		recvBal   string
	)
	err := row.Scan(
		&e.ID,
		&e.Reference,
		&e.SenderID,
		&e.ReceiverID,
		&amount,
		&fee,
		&entryType,
		&senderBal,
		&recvBal,
		&e.Status,
		&e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, myerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e.Type = model.EntryType(entryType)
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("malformed amount: %w", err)
	}
	if e.Fee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("malformed fee: %w", err)
	}
	if e.SenderBalance, err = decimal.NewFromString(senderBal); err != nil {
		return nil, fmt.Errorf("malformed sender_balance: %w", err)
	}
	if e.ReceiverBalance, err = decimal.NewFromString(recvBal); err != nil {
		return nil, fmt.Errorf("malformed receiver_balance: %w", err)
	}
	return &e, nil
}
