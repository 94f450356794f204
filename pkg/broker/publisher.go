package broker

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher sends payloads at QoS 0 and waits at most Timeout for the send.
type Publisher struct {
	client  mqtt.Client
	Timeout time.Duration
}

func NewPublisher(client mqtt.Client) *Publisher {
	return &Publisher{client: client, Timeout: 2 * time.Second}
}

func (p *Publisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(p.Timeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, p.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Connected() bool {
	return p.client.IsConnected()
}
