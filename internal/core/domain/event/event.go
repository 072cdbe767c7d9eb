package event

import "encoding/json"

// Event is the envelope pushed through the fan-out channel and over
// websocket connections.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	// inbound
	TypeRideRequest    = "ride.request"
	TypeRideAccept     = "ride.accept"
	TypeRideAdvance    = "ride.advance"
	TypeRideCancel     = "ride.cancel"
	TypeDriverLocation = "driver.location"
	TypeCounterOffer   = "ride.counter_offer"
	TypeWalletTransfer = "wallet.transfer"
	TypeSubscribe      = "subscribe"
	TypeUnsubscribe    = "unsubscribe"

	// outbound
	TypeRideOpportunity  = "ride.opportunity"
	TypeRideAccepted     = "ride.accepted"
	TypeRideConflict     = "ride.conflict"
	TypeRideStatus       = "ride.status_changed"
	TypeRideNoDrivers    = "ride.no_drivers"
	TypeLocationUpdate   = "driver.location_update"
	TypeTransferResult   = "wallet.transfer_result"
	TypeError            = "error"
)

// New marshals the payload into an envelope. Payloads are plain structs
// from this package, so marshalling cannot realistically fail; a failure
// yields an envelope with empty data rather than a dropped publish.
func New(typ string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{Type: typ}
	}
	return Event{Type: typ, Data: data}
}

func UserRoom(userID string) string { return "user:" + userID }
func RideRoom(rideID string) string { return "ride:" + rideID }
