package messages

import (
	"encoding/json"
	"fmt"
	"time"
)

// DoorPayload is the wire shape published by gateways on the door-node topic.
type DoorPayload struct {
	DoorNum *IDValue `json:"doorNum"`
	DoorChk int      `json:"doorChk"`
	BetChk3 int      `json:"betChk_3"`
	BetChk2 *int     `json:"betChk_2,omitempty"`
}

// DoorReading is one decoded door-node update.
type DoorReading struct {
	DoorNum       int
	GatewaySerial string
	DoorChk       int
	BetChk        int
	BetChk2       *int
	ReceivedAt    time.Time
}

func DecodeDoor(gatewaySerial string, payload []byte, now time.Time) (DoorReading, error) {
	var p DoorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return DoorReading{}, fmt.Errorf("%w: door payload: %v", ErrDecode, err)
	}
	if p.DoorNum == nil {
		return DoorReading{}, fmt.Errorf("%w: door payload: missing doorNum", ErrDecode)
	}
	return DoorReading{
		DoorNum:       int(*p.DoorNum),
		GatewaySerial: gatewaySerial,
		DoorChk:       p.DoorChk,
		BetChk:        p.BetChk3,
		BetChk2:       p.BetChk2,
		ReceivedAt:    now,
	}, nil
}

// DecodeGatewayResponse keeps a gateway response as an opaque JSON object.
func DecodeGatewayResponse(payload []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("%w: gateway response: %v", ErrDecode, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: gateway response: not an object", ErrDecode)
	}
	return m, nil
}
