package entities

// Building owns gateways and carries the alert levels its sensors are judged by.
type Building struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Name   string `gorm:"not null" json:"building_name"`
	Num    int    `json:"building_num"`
	Addr   string `json:"building_addr"`
	Status bool   `gorm:"not null;default:true" json:"building_status"`

	// Building-wide levels, used for any metric without a specific row.
	AlarmYellow *float64 `json:"alarm_yellow,omitempty"`
	AlarmRed    *float64 `json:"alarm_red,omitempty"`

	Thresholds []BuildingThreshold `gorm:"foreignKey:BuildingID" json:"thresholds,omitempty"`
}

// BuildingThreshold overrides the building-wide levels for one metric.
type BuildingThreshold struct {
	ID         uint    `gorm:"primaryKey" json:"-"`
	BuildingID uint    `gorm:"uniqueIndex:idx_building_metric;not null" json:"building_id"`
	Metric     string  `gorm:"uniqueIndex:idx_building_metric;not null" json:"metric"`
	Yellow     float64 `json:"yellow"`
	Red        float64 `json:"red"`
}

// AlertThresholds are the two levels a corrected value is classified against.
type AlertThresholds struct {
	Yellow float64 `json:"yellow"`
	Red    float64 `json:"red"`
}
