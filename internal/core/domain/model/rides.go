package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type RideStatus string

const (
	StatusSearching RideStatus = "searching"
	StatusAccepted  RideStatus = "accepted"
	StatusArrived   RideStatus = "arrived"
	StatusOngoing   RideStatus = "ongoing"
	StatusCompleted RideStatus = "completed"
	StatusCancelled RideStatus = "cancelled"
)

const (
	PaymentUnpaid = "unpaid"
	PaymentPaid   = "paid"
)

const (
	PaymentMethodWallet = "wallet"
	PaymentMethodCash   = "cash"
)

// advanceTable holds the legal forward transitions. searching -> accepted
// happens only through Accept, cancellation only through Cancel.
var advanceTable = map[RideStatus]RideStatus{
	StatusAccepted: StatusArrived,
	StatusArrived:  StatusOngoing,
	StatusOngoing:  StatusCompleted,
}

func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s RideStatus) CanAdvanceTo(target RideStatus) bool {
	return advanceTable[s] == target
}

func ValidStatus(s RideStatus) bool {
	switch s {
	case StatusSearching, StatusAccepted, StatusArrived, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// Offer is one entry in a ride's negotiation history.
type Offer struct {
	DriverID  string          `json:"driver_id"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

type Ride struct {
	ID          string
	RequesterID string

	// DriverID stays empty while the ride is searching and is immutable
	// once set.
	DriverID string

	Origin      Location
	Destination Location

	Status        RideStatus
	Category      string
	PaymentMethod string
	PaymentStatus string

	QuotedPrice     decimal.Decimal
	NegotiatedPrice decimal.Decimal
	FinalPrice      decimal.Decimal

	RequestedAt time.Time
	AcceptedAt  *time.Time
	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	CancelledBy        string
	CancellationReason string
}
