package model

import "time"

type DriverAvailability string

const (
	DriverAvailable DriverAvailability = "available"
	DriverBusy      DriverAvailability = "busy"
	DriverOffline   DriverAvailability = "offline"
)

// DriverPosition is the latest advisory position of a driver. Positions are
// last-writer-wins; only the driver's own session writes its record.
type DriverPosition struct {
	DriverID     string
	Latitude     float64
	Longitude    float64
	Heading      float64
	Availability DriverAvailability
	ChannelAddr  string
	UpdatedAt    time.Time
}

// DriverDistance is a directory query result, ordered by DistanceKm.
type DriverDistance struct {
	DriverPosition
	DistanceKm float64
}
