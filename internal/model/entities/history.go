package entities

import "time"

// AngleNodeHistory is one accepted, corrected tilt reading. Rows are never
// updated or deleted.
type AngleNodeHistory struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	GatewaySerial string    `gorm:"column:gw_number;not null" json:"gw_number"`
	DoorNum       int       `gorm:"index:idx_history_door_time;not null" json:"doorNum"`
	AngleX        float64   `json:"angle_x"`
	AngleY        float64   `json:"angle_y"`
	Position      string    `json:"position"` // snapshot taken at write time
	CreatedAt     time.Time `gorm:"index:idx_history_door_time" json:"createdAt"`
}

// NodeHistory is one door-node state change.
type NodeHistory struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	GatewaySerial string    `gorm:"column:gw_number;not null" json:"gw_number"`
	DoorNum       int       `gorm:"index;not null" json:"doorNum"`
	DoorChk       int       `json:"doorChk"`
	BetChk        int       `json:"betChk"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
}
