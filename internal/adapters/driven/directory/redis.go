package directory

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ridelink/internal/core/domain/model"
	"ridelink/internal/core/geo"
	"ridelink/internal/core/myerrors"
	"ridelink/internal/core/ports"
)

// RedisDirectory keeps driver positions in a Redis GEO set plus a metadata
// hash per driver, so the directory survives process restarts and is
// shared across service instances.
type RedisDirectory struct {
	client     *redis.Client
	key        string
	staleAfter time.Duration
}

func NewRedisDirectory(addr, password, key string, staleAfter time.Duration) *RedisDirectory {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisDirectory{client: c, key: key, staleAfter: staleAfter}
}

var _ ports.IDriverDirectory = (*RedisDirectory)(nil)

func (d *RedisDirectory) Upsert(ctx context.Context, pos model.DriverPosition) error {
	if pos.DriverID == "" {
		return myerrors.Validation("driver_id", "required")
	}
	if err := geo.ValidateCoords(pos.Latitude, pos.Longitude); err != nil {
		return err
	}
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now()
	}

	if err := d.client.GeoAdd(ctx, d.key, &redis.GeoLocation{
		Name:      pos.DriverID,
		Longitude: pos.Longitude,
		Latitude:  pos.Latitude,
	}).Err(); err != nil {
		return err
	}
	return d.client.HSet(ctx, metaKey(pos.DriverID), map[string]interface{}{
		"heading":      strconv.FormatFloat(pos.Heading, 'f', -1, 64),
		"availability": string(pos.Availability),
		"channel_addr": pos.ChannelAddr,
		"updated":      pos.UpdatedAt.Format(time.RFC3339),
	}).Err()
}

func (d *RedisDirectory) Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]model.DriverDistance, error) {
	if err := geo.ValidateCoords(lat, lng); err != nil {
		return nil, err
	}
	res, err := d.client.GeoRadius(ctx, d.key, lng, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-d.staleAfter)
	out := make([]model.DriverDistance, 0, len(res))
	for _, g := range res {
		meta, err := d.client.HGetAll(ctx, metaKey(g.Name)).Result()
		if err != nil {
			continue
		}
		updated, err := time.Parse(time.RFC3339, meta["updated"])
		if err != nil || updated.Before(cutoff) {
			continue
		}
		if model.DriverAvailability(meta["availability"]) != model.DriverAvailable {
			continue
		}
		if !geo.Usable(g.Latitude, g.Longitude) {
			continue
		}
		heading, _ := strconv.ParseFloat(meta["heading"], 64)
		out = append(out, model.DriverDistance{
			DriverPosition: model.DriverPosition{
				DriverID:     g.Name,
				Latitude:     g.Latitude,
				Longitude:    g.Longitude,
				Heading:      heading,
				Availability: model.DriverAvailable,
				ChannelAddr:  meta["channel_addr"],
				UpdatedAt:    updated,
			},
			DistanceKm: g.Dist,
		})
	}
	return out, nil
}

func (d *RedisDirectory) SetAvailability(ctx context.Context, driverID string, a model.DriverAvailability) error {
	return d.client.HSet(ctx, metaKey(driverID), "availability", string(a)).Err()
}

func (d *RedisDirectory) Remove(ctx context.Context, driverID string) error {
	if err := d.client.ZRem(ctx, d.key, driverID).Err(); err != nil {
		return err
	}
	return d.client.Del(ctx, metaKey(driverID)).Err()
}

func metaKey(id string) string { return "driver:meta:" + id }
