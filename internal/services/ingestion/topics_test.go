package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicsRoute(t *testing.T) {
	topics := Topics{Prefix: "GSSIOT/01030369081/", SerialDigits: 4}
	tests := []struct {
		topic, kind, serial string
	}{
		{"GSSIOT/01030369081/GATE_ANG/GW-000123", KindAngle, "0123"},
		{"GSSIOT/01030369081/GATE_PUB/0042", KindDoor, "0042"},
		{"GSSIOT/01030369081/GATE_RES/77", KindResponse, "77"},
		{"GSSIOT/01030369081/OTHER/0001", "", ""},
		{"elsewhere/GATE_ANG/0001", "", ""},
	}
	for _, tt := range tests {
		kind, serial := topics.Route(tt.topic)
		assert.Equal(t, tt.kind, kind, tt.topic)
		assert.Equal(t, tt.serial, serial, tt.topic)
	}

	whole := Topics{Prefix: "site/"}
	_, serial := whole.Route("site/GATE_ANG/GW-000123")
	assert.Equal(t, "GW-000123", serial)
}

func TestTopicsFilters(t *testing.T) {
	assert.Equal(t, []string{"p/GATE_PUB/+", "p/GATE_RES/+", "p/GATE_ANG/+"}, Topics{Prefix: "p/"}.Filters())
}
