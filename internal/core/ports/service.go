package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"ridelink/internal/core/domain/dto"
	"ridelink/internal/core/domain/model"
)

// IRidesService is the lifecycle engine: the single writer of ride status.
type IRidesService interface {
	CreateRide(ctx context.Context, req dto.RideRequestDto) (*model.Ride, error)
	GetRide(ctx context.Context, rideID string) (*model.Ride, error)
	Accept(ctx context.Context, rideID, driverID string, finalPrice decimal.Decimal) (*model.Ride, error)
	Advance(ctx context.Context, rideID string, caller dto.Principal, target model.RideStatus) (*model.Ride, error)
	Cancel(ctx context.Context, rideID string, actor dto.Principal, reason string) (*model.Ride, error)

	// CancelExpiredSearch cancels a ride only if it is still searching;
	// anything else is ErrConflict. The sweep depends on this re-check.
	CancelExpiredSearch(ctx context.Context, rideID, reason string) (*model.Ride, error)
}

type IDispatchService interface {
	RequestRide(ctx context.Context, req dto.RideRequestDto) (*model.Ride, int, error)
	Accept(ctx context.Context, req dto.RideAcceptDto) (*model.Ride, error)
	ProposeCounterOffer(ctx context.Context, req dto.CounterOfferDto) error
	RematchNearby(ctx context.Context, driverID string, lat, lng float64) (int, error)
}

type IWalletService interface {
	Transfer(ctx context.Context, req dto.TransferRequestDto) (*model.LedgerEntry, error)
	SettleRide(ctx context.Context, ride *model.Ride) error
	Balance(ctx context.Context, userID string) (*model.WalletAccount, error)
}

type IDriverService interface {
	GoOnline(ctx context.Context, req dto.PresenceDto) error
	GoOffline(ctx context.Context, driverID string) error
	UpdateLocation(ctx context.Context, req dto.LocationUpdateDto) error
}
