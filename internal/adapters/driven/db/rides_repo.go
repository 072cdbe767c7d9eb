package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
)

type RidesRepo struct {
	db *DB
}

func NewRidesRepo(db *DB) ports.IRidesRepo {
	return &RidesRepo{db: db}
}

const rideColumns = `
	ride_id,
	requester_id,
	driver_id,
	origin_lat, origin_lng, origin_address,
	dest_lat, dest_lng, dest_address,
	status,
	category,
	payment_method,
	payment_status,
	quoted_price::text,
	negotiated_price::text,
	final_price::text,
	requested_at,
	accepted_at, arrived_at, started_at, completed_at, cancelled_at,
	COALESCE(cancelled_by, ''),
	COALESCE(cancellation_reason, '')`

func (rr *RidesRepo) CreateRide(ctx context.Context, r *model.Ride) error {
	q := `INSERT INTO rides(
			ride_id,
			requester_id,
			origin_lat, origin_lng, origin_address,
			dest_lat, dest_lng, dest_address,
			status,
			category,
			payment_method,
			payment_status,
			quoted_price,
			negotiated_price,
			final_price,
			requested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := rr.db.Pool().Exec(ctx, q,
		r.ID,
		r.RequesterID,
		r.Origin.Latitude, r.Origin.Longitude, r.Origin.Address,
		r.Destination.Latitude, r.Destination.Longitude, r.Destination.Address,
		string(r.Status),
		r.Category,
		r.PaymentMethod,
		r.PaymentStatus,
		r.QuotedPrice.String(),
		r.NegotiatedPrice.String(),
		r.FinalPrice.String(),
		r.RequestedAt,
	)
	return err
}

func (rr *RidesRepo) FindByRideId(ctx context.Context, rideID string) (*model.Ride, error) {
	q := `SELECT ` + rideColumns + ` FROM rides WHERE ride_id = $1`
	return scanRide(rr.db.Pool().QueryRow(ctx, q, rideID))
}

// WithRideLock is the per-ride mutual exclusion guard. The row lock
// serializes accept, advance, cancel and the timeout sweep for one ride;
// unrelated rides proceed concurrently.
func (rr *RidesRepo) WithRideLock(ctx context.Context, rideID string, fn func(r *model.Ride) error) error {
	tx, err := rr.db.Pool().BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // Safe rollback if not committed

	q := `SELECT ` + rideColumns + ` FROM rides WHERE ride_id = $1 FOR UPDATE`
	ride, err := scanRide(tx.QueryRow(ctx, q, rideID))
	if err != nil {
		return err
	}

	if err := fn(ride); err != nil {
		return err
	}

	update := `UPDATE rides SET
			driver_id = $2,
			status = $3,
			negotiated_price = $4,
			final_price = $5,
			payment_status = $6,
			accepted_at = $7,
			arrived_at = $8,
			started_at = $9,
			completed_at = $10,
			cancelled_at = $11,
			cancelled_by = $12,
			cancellation_reason = $13
		WHERE ride_id = $1`

	_, err = tx.Exec(ctx, update,
		ride.ID,
		nullable(ride.DriverID),
		string(ride.Status),
		ride.NegotiatedPrice.String(),
		ride.FinalPrice.String(),
		ride.PaymentStatus,
		ride.AcceptedAt,
		ride.ArrivedAt,
		ride.StartedAt,
		ride.CompletedAt,
		ride.CancelledAt,
		nullable(ride.CancelledBy),
		nullable(ride.CancellationReason),
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (rr *RidesRepo) AppendOffer(ctx context.Context, rideID string, offer model.Offer) error {
	q := `INSERT INTO ride_offers(ride_id, driver_id, price, created_at) VALUES ($1, $2, $3, $4)`
	_, err := rr.db.Pool().Exec(ctx, q, rideID, offer.DriverID, offer.Price.String(), offer.CreatedAt)
	return err
}

func (rr *RidesRepo) SearchingSince(ctx context.Context, cutoff time.Time) ([]model.Ride, error) {
	q := `SELECT ` + rideColumns + ` FROM rides WHERE status = 'searching' AND requested_at < $1 ORDER BY requested_at`
	rows, err := rr.db.Pool().Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRides(rows)
}

func (rr *RidesRepo) OpenSearching(ctx context.Context, limit int) ([]model.Ride, error) {
	q := `SELECT ` + rideColumns + ` FROM rides WHERE status = 'searching' ORDER BY requested_at LIMIT $1`
	rows, err := rr.db.Pool().Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRides(rows)
}

func (rr *RidesRepo) ActiveRideIDForDriver(ctx context.Context, driverID string) (string, error) {
	q := `SELECT ride_id FROM rides WHERE driver_id = $1 AND status IN ('accepted', 'arrived', 'ongoing') LIMIT 1`
	var rideID string
	err := rr.db.Pool().QueryRow(ctx, q, driverID).Scan(&rideID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rideID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*model.Ride, error) {
	var (
		r        model.Ride
		driverID *string
		status   string
		quoted   string
		nego     string
		final    string
	)

	err := row.Scan(
		&r.ID,
		&r.RequesterID,
		&driverID,
		&r.Origin.Latitude, &r.Origin.Longitude, &r.Origin.Address,
		&r.Destination.Latitude, &r.Destination.Longitude, &r.Destination.Address,
		&status,
		&r.Category,
		&r.PaymentMethod,
		&r.PaymentStatus,
		&quoted,
		&nego,
		&final,
		&r.RequestedAt,
		&r.AcceptedAt, &r.ArrivedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt,
		&r.CancelledBy,
		&r.CancellationReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, myerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if driverID != nil {
		r.DriverID = *driverID
	}
	r.Status = model.RideStatus(status)
	if r.QuotedPrice, err = decimal.NewFromString(quoted); err != nil {
		return nil, fmt.Errorf("malformed quoted_price: %w", err)
	}
	if r.NegotiatedPrice, err = decimal.NewFromString(nego); err != nil {
		return nil, fmt.Errorf("malformed negotiated_price: %w", err)
	}
	if r.FinalPrice, err = decimal.NewFromString(final); err != nil {
		return nil, fmt.Errorf("malformed final_price: %w", err)
	}
	return &r, nil
}

func collectRides(rows pgx.Rows) ([]model.Ride, error) {
	var out []model.Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
