package dto

const (
	RolePassenger = "PASSENGER"
	RoleDriver    = "DRIVER"
	RoleAdmin     = "ADMIN"
	RoleSystem    = "SYSTEM"
)

// Principal is the verified identity attached to every inbound request by
// the gateway. The core trusts it and does no credential checking itself.
type Principal struct {
	UserID string
	Role   string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSystem
}
