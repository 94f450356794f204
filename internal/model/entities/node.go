package entities

import "time"

// DoorNode is an open/close sensor.
type DoorNode struct {
	DoorNum   int       `gorm:"primaryKey;autoIncrement:false" json:"doorNum"`
	DoorChk   int       `json:"doorChk"`
	BetChk    int       `json:"betChk"`
	BetChk2   *int      `json:"betChk_2,omitempty"`
	Status    bool      `gorm:"column:node_status;not null;default:true" json:"node_status"`
	GatewayID *uint     `json:"gateway_id,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
