package ingestion

import "strings"

// Topic kinds under the site prefix.
const (
	KindDoor     = "GATE_PUB"
	KindResponse = "GATE_RES"
	KindAngle    = "GATE_ANG"
)

// Topics maps transport topics to message kinds and gateway serials.
type Topics struct {
	Prefix string // e.g. "GSSIOT/01030369081/"
	// SerialDigits keeps only the trailing digits of the last topic segment
	// as the gateway serial; 0 keeps the whole segment.
	SerialDigits int
}

// Filters returns the subscription filters for every handled kind.
func (t Topics) Filters() []string {
	return []string{
		t.Prefix + KindDoor + "/+",
		t.Prefix + KindResponse + "/+",
		t.Prefix + KindAngle + "/+",
	}
}

// Route returns the kind of topic and the gateway serial it carries. Unknown
// topics return an empty kind.
func (t Topics) Route(topic string) (kind, serial string) {
	rest, ok := strings.CutPrefix(topic, t.Prefix)
	if !ok {
		return "", ""
	}
	kind, _, _ = strings.Cut(rest, "/")
	switch kind {
	case KindDoor, KindResponse, KindAngle:
	default:
		return "", ""
	}
	return kind, t.serial(topic)
}

func (t Topics) serial(topic string) string {
	last := topic
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		last = topic[i+1:]
	}
	if t.SerialDigits > 0 && len(last) > t.SerialDigits {
		last = last[len(last)-t.SerialDigits:]
	}
	return last
}
