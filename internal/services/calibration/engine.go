// Package calibration turns raw tilt readings into corrected ones, running the
// per-sensor zero-offset collection rounds along the way.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gssiot/sitewatch/internal/model"
	"github.com/gssiot/sitewatch/internal/model/entities"
	"github.com/gssiot/sitewatch/internal/store"
)

// OffsetMode selects the offset used to correct the sample that completes a
// collection round.
type OffsetMode string

const (
	// OffsetPreCommit corrects the completing sample with the offset in
	// force before it arrived (zero for a fresh round).
	OffsetPreCommit OffsetMode = "pre"
	// OffsetPostCommit corrects it with the offset it just committed.
	OffsetPostCommit OffsetMode = "post"
)

type Options struct {
	CompletingSample OffsetMode
	Now              func() time.Time
}

// Result is the outcome of applying calibration to one reading.
type Result struct {
	Reading     model.SensorReading
	Skipped     bool // save gate off, nothing was written
	CorrectedX  float64
	CorrectedY  float64
	Calibration entities.AngleCalibration // record after this reading
	Committed   bool                      // this reading completed a round
}

// Engine owns calibration records and the raw/corrected fields of sensor state.
// Every mutation of those rows goes through the engine under the sensor's lock.
type Engine struct {
	store *store.Store
	locks *SensorLocks
	opts  Options
	log   *slog.Logger
}

func NewEngine(s *store.Store, locks *SensorLocks, opts Options, log *slog.Logger) *Engine {
	if locks == nil {
		locks = NewSensorLocks()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CompletingSample == "" {
		opts.CompletingSample = OffsetPreCommit
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: s, locks: locks, opts: opts, log: log.With("component", "calibration")}
}

// PersistFunc writes the rows that belong with a corrected reading, using the
// transaction it is given. An error rolls the whole reading back.
type PersistFunc func(tx *store.Store, res Result) error

// Apply is ApplyWith without extra rows.
func (e *Engine) Apply(ctx context.Context, r model.SensorReading) (Result, error) {
	return e.ApplyWith(ctx, r, nil)
}

// ApplyWith checks the sensor's save gate, advances its collection round,
// stores the corrected values and runs persist, all in one transaction. A
// failed transaction leaves the stored record and sensor state as they were.
// persist is not called when the save gate is off.
func (e *Engine) ApplyWith(ctx context.Context, r model.SensorReading, persist PersistFunc) (Result, error) {
	unlock := e.locks.Lock(r.SensorID)
	defer unlock()

	now := r.ReceivedAt
	if now.IsZero() {
		now = e.opts.Now()
	}
	var res Result
	err := e.store.Tx(ctx, func(tx *store.Store) error {
		res = Result{Reading: r}

		allowed, err := tx.SaveAllowed(ctx, r.SensorID)
		if err != nil {
			return fmt.Errorf("save gate: %w", err)
		}
		if !allowed {
			res.Skipped = true
			return nil
		}

		rec, err := tx.Calibration(ctx, r.SensorID)
		existed := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("load calibration: %w", err)
		}
		if !existed {
			rec = entities.NewAngleCalibration(r.SensorID)
		}

		next, committed := rec.Accumulate(r.RawX, r.RawY, now)
		switch {
		case !existed:
			if err := tx.CreateCalibration(ctx, next); err != nil {
				return err
			}
		case rec.Collecting:
			if err := tx.SaveCalibration(ctx, next, rec.SampleCount); err != nil {
				return err
			}
		}

		offX, offY := rec.Offset()
		if committed && e.opts.CompletingSample == OffsetPostCommit {
			offX, offY = next.Offset()
		}
		res.CorrectedX = Round(r.RawX - offX)
		res.CorrectedY = Round(r.RawY - offY)
		res.Calibration = next
		res.Committed = committed

		if err := tx.RecordAngles(ctx, r.SensorID, r.RawX, r.RawY, res.CorrectedX, res.CorrectedY, now); err != nil {
			return err
		}
		if persist == nil {
			return nil
		}
		return persist(tx, res)
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply calibration to sensor %d: %w", r.SensorID, err)
	}

	switch {
	case res.Committed:
		e.log.Info("calibration committed", "sensor", r.SensorID,
			"offset_x", res.Calibration.OffsetX, "offset_y", res.Calibration.OffsetY,
			"samples", res.Calibration.SampleCount)
	case res.Calibration.Collecting:
		e.log.Debug("calibration collecting", "sensor", r.SensorID,
			"count", res.Calibration.SampleCount, "target", res.Calibration.Target())
	}
	return res, nil
}

// Round is the display precision applied to corrected values before they are
// stored or compared: two decimals, halves away from zero.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
