package messages

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrDecode marks a payload that cannot be turned into a reading.
var ErrDecode = errors.New("decode")

// AnglePayload is the wire shape published by gateways on the angle topic.
// doorNum is the sensor id.
type AnglePayload struct {
	DoorNum *IDValue  `json:"doorNum"`
	AngleX  *NumValue `json:"angle_x"`
	AngleY  *NumValue `json:"angle_y"`
}

// SensorReading is one decoded tilt sample, consumed once by the pipeline.
type SensorReading struct {
	SensorID      int       `json:"doorNum"`
	GatewaySerial string    `json:"gw_number"`
	RawX          float64   `json:"angle_x"`
	RawY          float64   `json:"angle_y"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// DecodeAngle turns an angle payload into a reading for the given gateway.
func DecodeAngle(gatewaySerial string, payload []byte, now time.Time) (SensorReading, error) {
	var p AnglePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return SensorReading{}, fmt.Errorf("%w: angle payload: %v", ErrDecode, err)
	}
	switch {
	case p.DoorNum == nil:
		return SensorReading{}, fmt.Errorf("%w: angle payload: missing doorNum", ErrDecode)
	case p.AngleX == nil || p.AngleY == nil:
		return SensorReading{}, fmt.Errorf("%w: angle payload: missing angle_x/angle_y", ErrDecode)
	case strings.TrimSpace(gatewaySerial) == "":
		return SensorReading{}, fmt.Errorf("%w: angle payload: empty gateway serial", ErrDecode)
	}
	return SensorReading{
		SensorID:      int(*p.DoorNum),
		GatewaySerial: gatewaySerial,
		RawX:          float64(*p.AngleX),
		RawY:          float64(*p.AngleY),
		ReceivedAt:    now,
	}, nil
}

// NumValue is a finite float that also accepts numeric strings, which some
// gateway firmwares emit.
type NumValue float64

func (n *NumValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("not a finite number: %s", b)
	}
	*n = NumValue(f)
	return nil
}

// IDValue is an integer id that, like NumValue, also accepts numeric strings
// and whole floats such as 101.0.
type IDValue int

func (v *IDValue) UnmarshalJSON(b []byte) error {
	var n NumValue
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	f := float64(n)
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return fmt.Errorf("not an integer id: %s", bytes.TrimSpace(b))
	}
	*v = IDValue(f)
	return nil
}
