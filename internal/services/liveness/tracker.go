// Package liveness tracks when sensors and gateways were last heard from.
package liveness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gssiot/sitewatch/internal/store"
)

type Store interface {
	TouchSensor(ctx context.Context, doorNum int, at time.Time) error
	TouchGateway(ctx context.Context, serial string, at time.Time) error
	SweepLiveness(ctx context.Context, cutoff time.Time) (store.SweepResult, error)
}

type Tracker struct {
	store Store
	log   *slog.Logger
}

func NewTracker(s Store, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{store: s, log: log.With("component", "liveness")}
}

// Touch marks the sensor and its gateway alive as of now. Both upserts are
// attempted even if the first fails.
func (t *Tracker) Touch(ctx context.Context, sensorID int, serial string, now time.Time) error {
	var errs []error
	if err := t.store.TouchSensor(ctx, sensorID, now); err != nil {
		errs = append(errs, err)
	}
	if serial != "" {
		if err := t.store.TouchGateway(ctx, serial, now); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("liveness: %w", err)
	}
	return nil
}

// TouchGateway marks only a gateway alive, for messages not tied to a sensor.
func (t *Tracker) TouchGateway(ctx context.Context, serial string, now time.Time) error {
	if err := t.store.TouchGateway(ctx, serial, now); err != nil {
		return fmt.Errorf("liveness: %w", err)
	}
	return nil
}

// Sweeper periodically marks sensors and gateways silent for longer than
// Window as dead.
type Sweeper struct {
	store    Store
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewSweeper(s Store, interval, window time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		store:    s,
		interval: interval,
		window:   window,
		now:      time.Now,
		log:      log.With("component", "heartbeat"),
	}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) (store.SweepResult, error) {
	res, err := s.store.SweepLiveness(ctx, s.now().Add(-s.window))
	if err != nil {
		return store.SweepResult{}, err
	}
	if res.GatewaysDown > 0 || res.SensorsDown > 0 {
		s.log.Info("heartbeat sweep", "gateways_down", res.GatewaysDown, "sensors_down", res.SensorsDown)
	}
	return res, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("heartbeat sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
