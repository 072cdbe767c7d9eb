package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/geo"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
)

// MemoryDirectory is the in-process driver directory. Single-instance
// deployments use it directly; multi-instance deployments swap in the
// redis-backed directory behind the same port.
type MemoryDirectory struct {
	mu         sync.RWMutex
	positions  map[string]model.DriverPosition
	staleAfter time.Duration
	now        func() time.Time
}

func NewMemoryDirectory(staleAfter time.Duration) *MemoryDirectory {
	return &MemoryDirectory{
		positions:  make(map[string]model.DriverPosition),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

var _ ports.IDriverDirectory = (*MemoryDirectory)(nil)

func (d *MemoryDirectory) Upsert(ctx context.Context, pos model.DriverPosition) error {
	if pos.DriverID == "" {
		return myerrors.Validation("driver_id", "required")
	}
	if err := geo.ValidateCoords(pos.Latitude, pos.Longitude); err != nil {
		return err
	}
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// last-writer-wins: positions are advisory, not ledger data
	d.positions[pos.DriverID] = pos
	return nil
}

func (d *MemoryDirectory) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]model.DriverDistance, error) {
	if err := geo.ValidateCoords(lat, lng); err != nil {
		return nil, err
	}
	cutoff := d.now().Add(-d.staleAfter)

	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]model.DriverDistance, 0, limit)
	for _, p := range d.positions {
		if p.Availability != model.DriverAvailable {
			continue
		}
		if p.UpdatedAt.Before(cutoff) {
			continue
		}
		if !geo.Usable(p.Latitude, p.Longitude) {
			continue
		}
		dist := geo.Haversine(lat, lng, p.Latitude, p.Longitude)
		if dist > radiusKm {
			continue
		}
		out = append(out, model.DriverDistance{DriverPosition: p, DistanceKm: dist})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *MemoryDirectory) SetAvailability(ctx context.Context, driverID string, a model.DriverAvailability) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.positions[driverID]
	if !ok {
		return myerrors.ErrNotFound
	}
	p.Availability = a
	p.UpdatedAt = d.now()
	d.positions[driverID] = p
	return nil
}

func (d *MemoryDirectory) Remove(ctx context.Context, driverID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.positions, driverID)
	return nil
}
