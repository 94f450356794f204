package calibration

import (
	"context"
	"errors"
	"fmt"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

// Start opens a new collection round of target samples for each sensor,
// discarding any committed offset. Non-positive targets use the default.
func (e *Engine) Start(ctx context.Context, doorNums []int, target int) error {
	if target <= 0 {
		target = entities.DefaultSampleTarget
	}
	now := e.opts.Now()
	var errs []error
	for _, id := range doorNums {
		unlock := e.locks.Lock(id)
		if err := e.store.StartCalibration(ctx, id, target, now); err != nil {
			errs = append(errs, err)
		}
		unlock()
	}
	e.log.Info("calibration started", "sensors", len(doorNums), "target", target, "failed", len(errs))
	return errors.Join(errs...)
}

// Cancel stops collection for each sensor; resetOffset also clears the
// committed offset. It returns how many sensors had a record.
func (e *Engine) Cancel(ctx context.Context, doorNums []int, resetOffset bool) (int, error) {
	matched := 0
	var errs []error
	for _, id := range doorNums {
		unlock := e.locks.Lock(id)
		ok, err := e.store.CancelCalibration(ctx, id, resetOffset)
		unlock()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			matched++
		}
	}
	e.log.Info("calibration canceled", "sensors", len(doorNums), "matched", matched, "reset_offset", resetOffset)
	return matched, errors.Join(errs...)
}

// SetSaveStatus toggles the save gate of each sensor. It returns how many
// sensors exist and how many actually changed.
func (e *Engine) SetSaveStatus(ctx context.Context, doorNums []int, status bool) (matched, changed int, err error) {
	now := e.opts.Now()
	var errs []error
	for _, id := range doorNums {
		unlock := e.locks.Lock(id)
		m, c, err := e.store.SetSaveStatus(ctx, id, status, now)
		unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("sensor %d: %w", id, err))
			continue
		}
		if m {
			matched++
		}
		if c {
			changed++
		}
	}
	e.log.Info("save status set", "sensors", len(doorNums), "status", status, "matched", matched, "changed", changed)
	return matched, changed, errors.Join(errs...)
}

// Calibrations lists calibration records, all of them when doorNums is empty.
func (e *Engine) Calibrations(ctx context.Context, doorNums []int) ([]entities.AngleCalibration, error) {
	return e.store.Calibrations(ctx, doorNums)
}

// Sensors lists every registered tilt sensor id.
func (e *Engine) Sensors(ctx context.Context) ([]int, error) {
	return e.store.DoorNums(ctx)
}
