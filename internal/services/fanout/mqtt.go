package fanout

import (
	"encoding/json"
	"log/slog"

	"github.com/gssiot/sitewatch/internal/metrics"
)

type MessagePublisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTEmitter republishes updates as JSON on Prefix + channel.
type MQTTEmitter struct {
	pub     MessagePublisher
	prefix  string
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewMQTTEmitter(pub MessagePublisher, prefix string, m *metrics.Metrics, log *slog.Logger) *MQTTEmitter {
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = slog.Default()
	}
	return &MQTTEmitter{pub: pub, prefix: prefix, metrics: m, log: log.With("component", "fanout-mqtt")}
}

func (e *MQTTEmitter) Emit(channel string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		e.log.Warn("marshal live update", "channel", channel, "err", err)
		return
	}
	if err := e.pub.Publish(e.prefix+channel, b); err != nil {
		e.log.Warn("republish live update", "channel", channel, "err", err)
		return
	}
	e.metrics.FanoutEmits.WithLabelValues("mqtt").Inc()
}
