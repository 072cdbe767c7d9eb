package dto

import (
	"time"

	"ridelink/internal/core/domain/model"
)

type RideRequestDto struct {
	RequesterID *string `json:"requester_id"`

	PickUpLatitude  *float64 `json:"pickup_latitude"`
	PickUpLongitude *float64 `json:"pickup_longitude"`
	PickUpAddress   *string  `json:"pickup_address"`

	DestinationLatitude  *float64 `json:"destination_latitude"`
	DestinationLongitude *float64 `json:"destination_longitude"`
	DestinationAddress   *string  `json:"destination_address"`

	QuotedPrice   *string `json:"quoted_price"`
	Category      *string `json:"category"`
	PaymentMethod *string `json:"payment_method"`
}

type RideAcceptDto struct {
	RideID     *string `json:"ride_id"`
	DriverID   *string `json:"driver_id"`
	FinalPrice *string `json:"final_price"`
}

type RideAdvanceDto struct {
	RideID *string `json:"ride_id"`
	Status *string `json:"status"`
}

type RideCancelDto struct {
	RideID *string `json:"ride_id"`
	Reason *string `json:"reason"`
}

type CounterOfferDto struct {
	RideID   *string `json:"ride_id"`
	DriverID *string `json:"driver_id"`
	Price    *string `json:"price"`
}

type RideResponseDto struct {
	RideID        string  `json:"ride_id"`
	Status        string  `json:"status"`
	DriverID      string  `json:"driver_id,omitempty"`
	QuotedPrice   string  `json:"quoted_price"`
	FinalPrice    string  `json:"final_price,omitempty"`
	PaymentStatus string  `json:"payment_status"`
	Candidates    int     `json:"candidates,omitempty"`
	RequestedAt   string  `json:"requested_at"`
	Message       string  `json:"message,omitempty"`
}

// FromRide builds the outward ride representation.
func FromRide(r *model.Ride) RideResponseDto {
	return RideResponseDto{
		RideID:        r.ID,
		Status:        string(r.Status),
		DriverID:      r.DriverID,
		QuotedPrice:   r.QuotedPrice.StringFixed(2),
		FinalPrice:    r.FinalPrice.StringFixed(2),
		PaymentStatus: r.PaymentStatus,
		RequestedAt:   r.RequestedAt.Format(time.RFC3339),
	}
}
