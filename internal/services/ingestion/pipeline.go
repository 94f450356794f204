package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gssiot/sitewatch/internal/metrics"
	"github.com/gssiot/sitewatch/internal/model"
	"github.com/gssiot/sitewatch/internal/model/entities"
	"github.com/gssiot/sitewatch/internal/model/messages"
	"github.com/gssiot/sitewatch/internal/services/alert"
	"github.com/gssiot/sitewatch/internal/services/calibration"
	"github.com/gssiot/sitewatch/internal/services/fanout"
	"github.com/gssiot/sitewatch/internal/services/history"
	"github.com/gssiot/sitewatch/internal/store"
)

type (
	Calibrator interface {
		ApplyWith(ctx context.Context, r model.SensorReading, persist calibration.PersistFunc) (calibration.Result, error)
	}
	Tracker interface {
		Touch(ctx context.Context, sensorID int, serial string, now time.Time) error
		TouchGateway(ctx context.Context, serial string, now time.Time) error
	}
	HistoryWriter interface {
		Record(ctx context.Context, st history.Store, sensorID int, serial string, cx, cy float64, now time.Time) (entities.AngleNodeHistory, error)
		Mirror(row entities.AngleNodeHistory)
		AppendDoor(ctx context.Context, serial string, n entities.DoorNode, now time.Time) error
	}
	AlertEvaluator interface {
		Evaluate(ctx context.Context, c alert.Candidate) *entities.AlertLog
	}
	AlertWriter interface {
		Write(ctx context.Context, a entities.AlertLog) (entities.AlertLog, error)
	}
	Fanout interface {
		Publish(ctx context.Context, serial string, kind fanout.Kind, payload any) bool
		Broadcast(channel string, payload any)
	}
	DoorStore interface {
		UpdateDoorNode(ctx context.Context, doorNum, doorChk, betChk int, betChk2 *int) (entities.DoorNode, error)
	}
	Deduper interface {
		ShouldProcess(id string) bool
	}
)

// Deps are the collaborators of a Pipeline. Dedup may be nil.
type Deps struct {
	Tracker     Tracker
	Calibrator  Calibrator
	History     HistoryWriter
	Evaluator   AlertEvaluator
	Alerts      AlertWriter
	Fanout      Fanout
	Doors       DoorStore
	Dedup       Deduper
	Metrics     *metrics.Metrics
	Log         *slog.Logger
	StepTimeout time.Duration // bound on each persistence step, 0 = none
	// AlertMetrics lists the corrected values checked against thresholds.
	AlertMetrics []string
}

// Pipeline runs the per-message processing steps.
type Pipeline struct {
	Deps
}

func NewPipeline(d Deps) *Pipeline {
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	d.Log = d.Log.With("component", "pipeline")
	if d.AlertMetrics == nil {
		d.AlertMetrics = []string{"angle_x", "angle_y"}
	}
	return &Pipeline{Deps: d}
}

func (p *Pipeline) step(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.StepTimeout)
}

// HandleAngle runs one tilt reading through liveness, the save gate,
// calibration, history, alerts and fan-out, in that order. Calibration and
// the history row commit together; if either fails the reading is abandoned
// with no state change. Liveness and alert failures do not abandon it.
func (p *Pipeline) HandleAngle(ctx context.Context, r model.SensorReading) {
	log := p.Log.With("sensor", r.SensorID, "gateway", r.GatewaySerial)
	now := r.ReceivedAt

	sctx, cancel := p.step(ctx)
	err := p.Tracker.Touch(sctx, r.SensorID, r.GatewaySerial, now)
	cancel()
	if err != nil {
		p.Metrics.Fail(metrics.StageLiveness)
		log.Error("liveness update failed", "err", err)
	}

	var (
		row     entities.AngleNodeHistory
		histErr error
	)
	sctx, cancel = p.step(ctx)
	res, err := p.Calibrator.ApplyWith(sctx, r, func(tx *store.Store, cr calibration.Result) error {
		row, histErr = p.History.Record(sctx, tx, r.SensorID, r.GatewaySerial, cr.CorrectedX, cr.CorrectedY, now)
		return histErr
	})
	cancel()
	switch {
	case err != nil && histErr != nil:
		p.Metrics.Fail(metrics.StageHistory)
		log.Error("history append failed, dropping reading", "err", err)
		return
	case err != nil:
		p.Metrics.Fail(metrics.StageCalibration)
		log.Error("calibration failed, dropping reading", "err", err)
		return
	}

	if res.Skipped {
		p.Metrics.SaveSkipped.Inc()
		log.Debug("save gate off, recording liveness only")
		p.publish(ctx, r.GatewaySerial, fanout.AngleNodes, messages.LivenessUpdate{
			DoorNum:       r.SensorID,
			GatewaySerial: r.GatewaySerial,
			NodeAlive:     true,
			LastSeen:      now,
			SaveSkipped:   true,
		})
		return
	}
	if res.Committed {
		p.Metrics.CalibrationCommit.Inc()
	}

	p.History.Mirror(row)

	values := map[string]float64{"angle_x": res.CorrectedX, "angle_y": res.CorrectedY}
	raw := map[string]any{
		"angle_x":     r.RawX,
		"angle_y":     r.RawY,
		"calibratedX": res.CorrectedX,
		"calibratedY": res.CorrectedY,
	}
	for _, metric := range p.AlertMetrics {
		v, ok := values[metric]
		if !ok {
			continue
		}
		p.alert(ctx, log, alert.Candidate{
			GatewaySerial: r.GatewaySerial,
			SensorID:      r.SensorID,
			Metric:        metric,
			Value:         v,
			Raw:           raw,
			At:            now,
		})
	}

	p.publish(ctx, r.GatewaySerial, fanout.AngleNodes, messages.AngleUpdate{
		DoorNum:       r.SensorID,
		GatewaySerial: r.GatewaySerial,
		AngleX:        r.RawX,
		AngleY:        r.RawY,
		CalibratedX:   res.CorrectedX,
		CalibratedY:   res.CorrectedY,
		Position:      row.Position,
		NodeAlive:     true,
		LastSeen:      now,
	})
}

func (p *Pipeline) alert(ctx context.Context, log *slog.Logger, c alert.Candidate) {
	sctx, cancel := p.step(ctx)
	defer cancel()
	a := p.Evaluator.Evaluate(sctx, c)
	if a == nil {
		return
	}
	if _, err := p.Alerts.Write(sctx, *a); err != nil {
		p.Metrics.Fail(metrics.StageAlert)
		log.Error("alert write failed", "metric", c.Metric, "level", a.Level, "err", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, serial string, kind fanout.Kind, payload any) {
	sctx, cancel := p.step(ctx)
	defer cancel()
	p.Fanout.Publish(sctx, serial, kind, payload)
}

// HandleDoor stores a door-node state change, appends its history row and
// publishes it. Unknown nodes are dropped.
func (p *Pipeline) HandleDoor(ctx context.Context, r model.DoorReading) {
	log := p.Log.With("door", r.DoorNum, "gateway", r.GatewaySerial)

	if r.GatewaySerial != "" {
		sctx, cancel := p.step(ctx)
		err := p.Tracker.TouchGateway(sctx, r.GatewaySerial, r.ReceivedAt)
		cancel()
		if err != nil {
			p.Metrics.Fail(metrics.StageLiveness)
			log.Error("gateway liveness update failed", "err", err)
		}
	}

	sctx, cancel := p.step(ctx)
	node, err := p.Doors.UpdateDoorNode(sctx, r.DoorNum, r.DoorChk, r.BetChk, r.BetChk2)
	cancel()
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Info("door node not registered, dropping update")
		return
	case err != nil:
		p.Metrics.Fail(metrics.StageDoor)
		log.Error("door node update failed", "err", err)
		return
	}

	sctx, cancel = p.step(ctx)
	err = p.History.AppendDoor(sctx, r.GatewaySerial, node, r.ReceivedAt)
	cancel()
	if err != nil {
		p.Metrics.Fail(metrics.StageHistory)
		log.Error("door history append failed", "err", err)
		return
	}

	p.publish(ctx, r.GatewaySerial, fanout.DoorNodes, messages.DoorUpdate{
		DoorNum:       node.DoorNum,
		GatewaySerial: r.GatewaySerial,
		DoorChk:       node.DoorChk,
		BetChk:        node.BetChk,
		BetChk2:       node.BetChk2,
	})
}

// HandleResponse broadcasts a gateway response once per dedup window.
func (p *Pipeline) HandleResponse(_ context.Context, serial string, payload []byte, body map[string]any) {
	if p.Dedup != nil && !p.Dedup.ShouldProcess(serial+"|"+string(payload)) {
		p.Log.Debug("duplicate gateway response", "gateway", serial)
		return
	}
	p.Log.Info("gateway response", "gateway", serial)
	p.Fanout.Broadcast(fanout.GatewayResponses, body)
}
