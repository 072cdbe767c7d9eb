package dto

type LocationUpdateDto struct {
	DriverID  *string  `json:"driver_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Heading   *float64 `json:"heading"`
}

type PresenceDto struct {
	DriverID    *string  `json:"driver_id"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	ChannelAddr *string  `json:"channel_addr"`
}

type LocationUpdateResponseDto struct {
	DriverID  string `json:"driver_id"`
	UpdatedAt string `json:"updated_at"`
}
