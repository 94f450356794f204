// Package simulator publishes synthetic tilt readings the way a site
// gateway does, for running the service without hardware.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

type Publisher interface {
	Publish(topic string, payload []byte) error
}

type Config struct {
	// Topic is the angle topic of the simulated gateway,
	// e.g. "GSSIOT/01030369081/GATE_ANG/GW010001".
	Topic    string
	Sensors  []int
	Interval time.Duration
}

type Simulator struct {
	cfg Config
	gen *Generator
	pub Publisher
	log *slog.Logger
	now func() time.Time
}

func New(cfg Config, gen *Generator, pub Publisher, log *slog.Logger) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Simulator{
		cfg: cfg,
		gen: gen,
		pub: pub,
		log: log.With("component", "simulator", "topic", cfg.Topic),
		now: time.Now,
	}
}

type anglePayload struct {
	DoorNum int     `json:"doorNum"`
	AngleX  float64 `json:"angle_x"`
	AngleY  float64 `json:"angle_y"`
}

// Tick publishes one reading per sensor. Publish failures are logged and
// the first one is returned.
func (s *Simulator) Tick() error {
	now := s.now()
	var first error
	failed := 0
	for _, id := range s.cfg.Sensors {
		x, y := s.gen.Next(id, now)
		payload, err := json.Marshal(anglePayload{DoorNum: id, AngleX: x, AngleY: y})
		if err != nil {
			return fmt.Errorf("encode reading %d: %w", id, err)
		}
		if err := s.pub.Publish(s.cfg.Topic, payload); err != nil {
			failed++
			if first == nil {
				first = fmt.Errorf("publish reading %d: %w", id, err)
			}
			continue
		}
		s.log.Debug("published", "sensor", id, "angle_x", x, "angle_y", y)
	}
	if failed > 0 {
		s.log.Warn("publish failed", "failed", failed, "sensors", len(s.cfg.Sensors), "err", first)
	}
	return first
}

// Run ticks every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	s.log.Info("simulator started", "sensors", len(s.cfg.Sensors), "interval", s.cfg.Interval)
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			_ = s.Tick()
		}
	}
}
