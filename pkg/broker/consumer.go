package broker

import (
	"context"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one message received on topic (the subscription
// filter, not the concrete topic of the message).
type Handler func(topic string, msg mqtt.Message) error

// Consumer subscribes one handler to a set of topic filters.
type Consumer struct {
	client  mqtt.Client
	topics  []string
	qos     byte
	handler Handler
	log     *slog.Logger
}

func NewConsumer(client mqtt.Client, topics []string, qos byte, handler Handler, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		client:  client,
		topics:  topics,
		qos:     qos,
		handler: handler,
		log:     log.With("component", "consumer"),
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// Subscribe registers every topic filter with the broker.
func (c *Consumer) Subscribe() error {
	for _, topic := range c.topics {
		topic := topic
		token := c.client.Subscribe(topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
			if c.handler == nil {
				c.log.Warn("no handler set", "topic", topic)
				return
			}
			if err := c.handler(topic, msg); err != nil {
				c.log.Warn("error handling message", "topic", msg.Topic(), "err", err)
			}
		})
		token.Wait()
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		c.log.Info("subscribed", "topic", topic)
	}
	return nil
}

// Consume subscribes and blocks until ctx is done, then unsubscribes.
func (c *Consumer) Consume(ctx context.Context) error {
	if err := c.Subscribe(); err != nil {
		return err
	}
	<-ctx.Done()
	if c.client.IsConnected() {
		c.client.Unsubscribe(c.topics...).Wait()
	}
	return nil
}
