package entities

import "time"

// AngleNode is the persisted state of a single tilt sensor.
type AngleNode struct {
	DoorNum int `gorm:"primaryKey;autoIncrement:false" json:"doorNum"`

	AngleX      float64 `json:"angle_x"`      // last raw reading
	AngleY      float64 `json:"angle_y"`      // last raw reading
	CalibratedX float64 `json:"calibrated_x"` // last corrected reading
	CalibratedY float64 `json:"calibrated_y"` // last corrected reading

	// SaveStatus gates persistence of values; liveness is always tracked.
	SaveStatus          bool       `gorm:"not null;default:true" json:"save_status"`
	SaveStatusChangedAt *time.Time `json:"save_status_lastSeen,omitempty"`

	LastSeen *time.Time `gorm:"index" json:"lastSeen,omitempty"`
	Alive    bool       `gorm:"column:node_alive" json:"node_alive"`
	Position string     `json:"position"`

	GatewayID *uint `json:"gateway_id,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
