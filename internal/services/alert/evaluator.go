// Package alert classifies corrected readings against building thresholds
// and records the hits.
package alert

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/gssiot/sitewatch/internal/model/entities"
	"github.com/gssiot/sitewatch/internal/store"
)

// Directory resolves the building a gateway belongs to and its thresholds.
type Directory interface {
	Gateway(ctx context.Context, serial string) (entities.Gateway, error)
	Thresholds(ctx context.Context, buildingID uint, metric string) (entities.AlertThresholds, error)
}

// Candidate is one corrected value to evaluate.
type Candidate struct {
	GatewaySerial string
	SensorID      int
	Metric        string
	Value         float64
	Raw           map[string]any
	At            time.Time
}

// Classify returns the level of v and the threshold it reached. Red wins over
// yellow; NaN never alerts.
func Classify(v float64, th entities.AlertThresholds) (entities.AlertLevel, float64) {
	switch {
	case math.IsNaN(v):
		return entities.LevelNone, 0
	case v >= th.Red:
		return entities.LevelRed, th.Red
	case v >= th.Yellow:
		return entities.LevelYellow, th.Yellow
	default:
		return entities.LevelNone, 0
	}
}

type Evaluator struct {
	dir Directory
	log *slog.Logger
}

func NewEvaluator(dir Directory, log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{dir: dir, log: log.With("component", "alert")}
}

// Evaluate returns the alert c raises, or nil. Lookup failures of any kind
// mean no alert.
func (e *Evaluator) Evaluate(ctx context.Context, c Candidate) *entities.AlertLog {
	gw, err := e.dir.Gateway(ctx, c.GatewaySerial)
	if err != nil {
		e.miss("gateway", c, err)
		return nil
	}
	if gw.BuildingID == nil {
		e.log.Debug("gateway has no building", "gateway", c.GatewaySerial, "sensor", c.SensorID)
		return nil
	}
	gwID := gw.ID
	return e.EvaluateBuilding(ctx, *gw.BuildingID, &gwID, c)
}

// EvaluateBuilding is Evaluate with the building already resolved.
func (e *Evaluator) EvaluateBuilding(ctx context.Context, buildingID uint, gatewayID *uint, c Candidate) *entities.AlertLog {
	th, err := e.dir.Thresholds(ctx, buildingID, c.Metric)
	if err != nil {
		e.miss("thresholds", c, err)
		return nil
	}
	level, threshold := Classify(c.Value, th)
	if level == entities.LevelNone {
		return nil
	}
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	return &entities.AlertLog{
		BuildingID:    buildingID,
		GatewayID:     gatewayID,
		GatewaySerial: c.GatewaySerial,
		DoorNum:       c.SensorID,
		Level:         level,
		Metric:        c.Metric,
		Value:         c.Value,
		Threshold:     threshold,
		Raw:           c.Raw,
		CreatedAt:     at,
	}
}

func (e *Evaluator) miss(what string, c Candidate, err error) {
	if errors.Is(err, store.ErrNotFound) {
		e.log.Debug("no "+what+" for alert", "gateway", c.GatewaySerial, "sensor", c.SensorID, "metric", c.Metric)
		return
	}
	e.log.Warn(what+" lookup failed, skipping alert", "gateway", c.GatewaySerial, "sensor", c.SensorID,
		"metric", c.Metric, "err", err)
}
