package entities

import "time"

// Gateway aggregates several sensors and is optionally attached to a building.
type Gateway struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SerialNumber string `gorm:"uniqueIndex;not null" json:"serial_number"`
	GatewayType  string `gorm:"not null;default:NODE_GATEWAY" json:"gateway_type"`
	Status       bool   `gorm:"column:gateway_status;not null;default:true" json:"gateway_status"`
	ZoneName     string `json:"zone_name"`

	BuildingID *uint `gorm:"index" json:"building_id"`

	LastSeen *time.Time `gorm:"index" json:"lastSeen,omitempty"`
	Alive    bool       `gorm:"column:gateway_alive" json:"gateway_alive"`
}
