package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

// Calibration loads the calibration record of a sensor.
func (s *Store) Calibration(ctx context.Context, doorNum int) (entities.AngleCalibration, error) {
	var rec entities.AngleCalibration
	err := s.db.WithContext(ctx).Where("door_num = ?", doorNum).Take(&rec).Error
	if err != nil {
		return entities.AngleCalibration{}, notFound(err)
	}
	return rec, nil
}

// CreateCalibration inserts a new record. It fails with ErrConflict when a
// record for the sensor already exists.
func (s *Store) CreateCalibration(ctx context.Context, rec entities.AngleCalibration) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return fmt.Errorf("create calibration %d: %w", rec.DoorNum, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// SaveCalibration writes rec only if the stored sample count still equals
// expectedCount, so two writers reading the same record cannot both commit.
func (s *Store) SaveCalibration(ctx context.Context, rec entities.AngleCalibration, expectedCount int) error {
	res := s.db.WithContext(ctx).
		Model(&entities.AngleCalibration{}).
		Where("door_num = ? AND sample_count = ?", rec.DoorNum, expectedCount).
		Select("applied", "offset_x", "offset_y", "applied_at", "note", "collecting",
			"sample_target", "sample_count", "sum_x", "sum_y", "updated_at").
		Updates(&rec)
	if res.Error != nil {
		return fmt.Errorf("save calibration %d: %w", rec.DoorNum, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// StartCalibration resets the offset of each sensor and opens a new
// collection round of target samples, creating records as needed.
func (s *Store) StartCalibration(ctx context.Context, doorNum, target int, now time.Time) error {
	now = utc(now)
	note := fmt.Sprintf("collecting %d samples", target)
	rec := entities.AngleCalibration{
		DoorNum:      doorNum,
		Note:         note,
		Collecting:   true,
		SampleTarget: target,
		StartedAt:    &now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "door_num"}},
		DoUpdates: clause.Assignments(map[string]any{
			"applied":       false,
			"offset_x":      0,
			"offset_y":      0,
			"note":          note,
			"collecting":    true,
			"sample_target": target,
			"sample_count":  0,
			"sum_x":         0,
			"sum_y":         0,
			"started_at":    now,
			"updated_at":    now,
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("start calibration %d: %w", doorNum, err)
	}
	return nil
}

// CancelCalibration stops a collection round and drops its accumulated
// samples. With resetOffset the committed offset is cleared too. It reports
// whether a record existed.
func (s *Store) CancelCalibration(ctx context.Context, doorNum int, resetOffset bool) (bool, error) {
	set := map[string]any{
		"collecting":   false,
		"sample_count": 0,
		"sum_x":        0,
		"sum_y":        0,
		"started_at":   nil,
		"note":         "canceled",
	}
	if resetOffset {
		set["note"] = "canceled, offset reset"
		set["applied"] = false
		set["offset_x"] = 0
		set["offset_y"] = 0
		set["applied_at"] = nil
	}
	res := s.db.WithContext(ctx).Model(&entities.AngleCalibration{}).
		Where("door_num = ?", doorNum).Updates(set)
	if res.Error != nil {
		return false, fmt.Errorf("cancel calibration %d: %w", doorNum, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Calibrations lists records, restricted to doorNums when given.
func (s *Store) Calibrations(ctx context.Context, doorNums []int) ([]entities.AngleCalibration, error) {
	q := s.db.WithContext(ctx).Order("door_num")
	if len(doorNums) > 0 {
		q = q.Where("door_num IN ?", doorNums)
	}
	var out []entities.AngleCalibration
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list calibrations: %w", err)
	}
	return out, nil
}
