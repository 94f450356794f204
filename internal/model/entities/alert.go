package entities

import "time"

// AlertLevel is the classification of a corrected value against thresholds.
type AlertLevel string

const (
	LevelNone   AlertLevel = ""
	LevelYellow AlertLevel = "yellow"
	LevelRed    AlertLevel = "red"
)

// AlertLog is a persisted yellow or red threshold hit.
type AlertLog struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	BuildingID    uint           `gorm:"index:idx_alert_building_time;not null" json:"building"`
	GatewayID     *uint          `json:"gateway"`
	GatewaySerial string         `gorm:"index:idx_alert_gw_door_time;not null" json:"gateway_serial"`
	DoorNum       int            `gorm:"index:idx_alert_gw_door_time;not null" json:"doorNum"`
	Level         AlertLevel     `gorm:"index:idx_alert_level_time;not null" json:"level"`
	Metric        string         `gorm:"not null" json:"metric"`
	Value         float64        `json:"value"`
	Threshold     float64        `json:"threshold"`
	Raw           map[string]any `gorm:"serializer:json" json:"raw"`
	CreatedAt     time.Time      `gorm:"index:idx_alert_building_time;index:idx_alert_level_time;index:idx_alert_gw_door_time" json:"createdAt"`
}
