package ports

import (
	"context"

	"ridelink/internal/core/domain/model"
)

// IDriverDirectory answers "who is near this point". Positions are
// advisory: writes are last-writer-wins and reads tolerate staleness up to
// the configured freshness window.
type IDriverDirectory interface {
	Upsert(ctx context.Context, pos model.DriverPosition) error

	// Nearby returns available drivers with a fresh position within
	// radiusKm of the point, ascending by distance, at most limit. An
	// empty result is not an error.
	Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]model.DriverDistance, error)

	SetAvailability(ctx context.Context, driverID string, a model.DriverAvailability) error
	Remove(ctx context.Context, driverID string) error
}
