// Package broker wraps the paho MQTT client: connecting with retries,
// subscribing handlers to topics and publishing payloads.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Host       string
	Port       int
	User       string
	Password   string
	ClientID   string
	Retries    int           // connection attempts before giving up, 0 means 5
	MaxElapsed time.Duration // upper bound on the whole retry loop, 0 means 10s
	// CleanSession false lets the broker keep subscriptions across
	// reconnects of the same client id.
	CleanSession bool
}

func (c Config) Addr() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// Connect dials the broker with exponential backoff. The connection is
// closed when ctx is done.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (mqtt.Client, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "broker", "broker", cfg.Addr())

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Addr())
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("connection lost", "err", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Info("reconnecting")
	})

	retries := cfg.Retries
	if retries <= 0 {
		retries = 5
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MaxElapsed
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 10 * time.Second
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warn("failed to connect to MQTT broker", "err", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Info("connected to MQTT broker")

	go func() {
		<-ctx.Done()
		Close(client)
		log.Info("MQTT connection closed")
	}()

	return client, nil
}

// Close disconnects the client if it is still connected.
func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
