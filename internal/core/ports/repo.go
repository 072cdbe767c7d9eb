package ports

import (
	"context"
	"time"

	"ridelink/internal/core/domain/model"
)

type IRidesRepo interface {
	CreateRide(ctx context.Context, r *model.Ride) error
	FindByRideId(ctx context.Context, rideID string) (*model.Ride, error)

	// WithRideLock runs fn with exclusive ownership of the ride record.
	// Mutations fn makes to the ride are persisted atomically when fn
	// returns nil; any error discards them. Every status mutation in the
	// module goes through this guard.
	WithRideLock(ctx context.Context, rideID string, fn func(r *model.Ride) error) error

	AppendOffer(ctx context.Context, rideID string, offer model.Offer) error

	// SearchingSince returns rides still searching that were requested
	// before the cutoff. Used by the timeout sweep.
	SearchingSince(ctx context.Context, cutoff time.Time) ([]model.Ride, error)

	// OpenSearching returns up to limit rides currently searching, oldest
	// first. Used for passive re-matching against driver pings.
	OpenSearching(ctx context.Context, limit int) ([]model.Ride, error)

	ActiveRideIDForDriver(ctx context.Context, driverID string) (string, error)
}

type IWalletRepo interface {
	Account(ctx context.Context, userID string) (*model.WalletAccount, error)
	CreateAccount(ctx context.Context, a *model.WalletAccount) error
	EntryByReference(ctx context.Context, ref string) (*model.LedgerEntry, error)

	// WithAccountLock locks the given accounts in ascending id order, runs
	// fn against the locked snapshots, then persists the mutated balances
	// together with the returned ledger entry in one atomic commit. A
	// reference collision surfaces as myerrors.ErrDuplicateReference with
	// nothing applied.
	WithAccountLock(ctx context.Context, ids []string, fn func(accounts map[string]*model.WalletAccount) (*model.LedgerEntry, error)) error
}
