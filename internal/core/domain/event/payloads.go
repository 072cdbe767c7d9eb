package event

import (
	"time"

	"ridelink/internal/core/domain/model"
)

type RideSnapshot struct {
	RideID      string         `json:"ride_id"`
	RequesterID string         `json:"requester_id"`
	DriverID    string         `json:"driver_id,omitempty"`
	Origin      model.Location `json:"origin"`
	Destination model.Location `json:"destination"`
	Status      string         `json:"status"`
	Category    string         `json:"category"`
	QuotedPrice string         `json:"quoted_price"`
	FinalPrice  string         `json:"final_price,omitempty"`
}

func Snapshot(r *model.Ride) RideSnapshot {
	return RideSnapshot{
		RideID:      r.ID,
		RequesterID: r.RequesterID,
		DriverID:    r.DriverID,
		Origin:      r.Origin,
		Destination: r.Destination,
		Status:      string(r.Status),
		Category:    r.Category,
		QuotedPrice: r.QuotedPrice.StringFixed(2),
		FinalPrice:  r.FinalPrice.StringFixed(2),
	}
}

type OpportunityPayload struct {
	Ride       RideSnapshot `json:"ride"`
	DistanceKm float64      `json:"distance_km"`
}

type StatusChangedPayload struct {
	RideID    string `json:"ride_id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func StatusChanged(r *model.Ride) StatusChangedPayload {
	return StatusChangedPayload{
		RideID:    r.ID,
		Status:    string(r.Status),
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

type ConflictPayload struct {
	RideID string `json:"ride_id"`
	Reason string `json:"reason"`
}

type NoDriversPayload struct {
	RideID  string `json:"ride_id"`
	Message string `json:"message"`
}

type CounterOfferPayload struct {
	RideID    string `json:"ride_id"`
	DriverID  string `json:"driver_id"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
}

type LocationUpdatePayload struct {
	DriverID  string  `json:"driver_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Heading   float64 `json:"heading"`
	Timestamp string  `json:"timestamp"`
}

type TransferResultPayload struct {
	Success   bool   `json:"success"`
	Reference string `json:"reference"`
	Amount    string `json:"amount,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
