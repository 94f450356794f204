package messages

import "time"

// AngleUpdate is emitted to live subscribers after a reading was recorded.
type AngleUpdate struct {
	DoorNum       int       `json:"doorNum"`
	GatewaySerial string    `json:"gw_number"`
	AngleX        float64   `json:"angle_x"`
	AngleY        float64   `json:"angle_y"`
	CalibratedX   float64   `json:"calibrated_x"`
	CalibratedY   float64   `json:"calibrated_y"`
	Position      string    `json:"position"`
	NodeAlive     bool      `json:"node_alive"`
	LastSeen      time.Time `json:"lastSeen"`
}

// LivenessUpdate is emitted when a reading was observed but not recorded
// because the sensor's save gate is off.
type LivenessUpdate struct {
	DoorNum       int       `json:"doorNum"`
	GatewaySerial string    `json:"gw_number"`
	NodeAlive     bool      `json:"node_alive"`
	LastSeen      time.Time `json:"lastSeen"`
	SaveSkipped   bool      `json:"save_skipped"`
}

// DoorUpdate is emitted after a door-node state change was stored.
type DoorUpdate struct {
	DoorNum       int    `json:"doorNum"`
	GatewaySerial string `json:"gw_number"`
	DoorChk       int    `json:"doorChk"`
	BetChk        int    `json:"betChk"`
	BetChk2       *int   `json:"betChk_2,omitempty"`
}
