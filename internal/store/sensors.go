package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

// lastSeenExpr keeps last_seen monotonic when readings arrive out of clock order.
var lastSeenExpr = gorm.Expr("CASE WHEN last_seen IS NULL OR last_seen < excluded.last_seen THEN excluded.last_seen ELSE last_seen END")

// TouchSensor upserts lastSeen/alive for a tilt sensor.
func (s *Store) TouchSensor(ctx context.Context, doorNum int, at time.Time) error {
	at = utc(at)
	node := entities.AngleNode{DoorNum: doorNum, LastSeen: &at, Alive: true}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "door_num"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_seen":  lastSeenExpr,
			"node_alive": true,
			"updated_at": at,
		}),
	}).Create(&node).Error
	if err != nil {
		return fmt.Errorf("touch sensor %d: %w", doorNum, err)
	}
	return nil
}

// TouchGateway upserts lastSeen/alive for a gateway.
func (s *Store) TouchGateway(ctx context.Context, serial string, at time.Time) error {
	at = utc(at)
	gw := entities.Gateway{SerialNumber: serial, LastSeen: &at, Alive: true}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "serial_number"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_seen":     lastSeenExpr,
			"gateway_alive": true,
		}),
	}).Create(&gw).Error
	if err != nil {
		return fmt.Errorf("touch gateway %s: %w", serial, err)
	}
	return nil
}

// AngleNode loads the persisted state of a tilt sensor.
func (s *Store) AngleNode(ctx context.Context, doorNum int) (entities.AngleNode, error) {
	var n entities.AngleNode
	if err := s.db.WithContext(ctx).Where("door_num = ?", doorNum).Take(&n).Error; err != nil {
		return entities.AngleNode{}, notFound(err)
	}
	return n, nil
}

// SaveAllowed reports the save gate of a sensor; unknown sensors record.
func (s *Store) SaveAllowed(ctx context.Context, doorNum int) (bool, error) {
	n, err := s.AngleNode(ctx, doorNum)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return n.SaveStatus, nil
}

// RecordAngles stores the last raw and corrected values of a sensor.
func (s *Store) RecordAngles(ctx context.Context, doorNum int, rawX, rawY, calX, calY float64, at time.Time) error {
	at = utc(at)
	node := entities.AngleNode{
		DoorNum: doorNum, AngleX: rawX, AngleY: rawY,
		CalibratedX: calX, CalibratedY: calY,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "door_num"}},
		DoUpdates: clause.Assignments(map[string]any{
			"angle_x":      rawX,
			"angle_y":      rawY,
			"calibrated_x": calX,
			"calibrated_y": calY,
			"updated_at":   at,
		}),
	}).Create(&node).Error
	if err != nil {
		return fmt.Errorf("record angles %d: %w", doorNum, err)
	}
	return nil
}

// SetSaveStatus changes the save gate of a sensor. It reports whether the
// sensor exists and whether the value changed; the change time is only
// written on an actual change.
func (s *Store) SetSaveStatus(ctx context.Context, doorNum int, status bool, at time.Time) (matched, changed bool, err error) {
	n, err := s.AngleNode(ctx, doorNum)
	if errors.Is(err, ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	if n.SaveStatus == status {
		return true, false, nil
	}
	at = utc(at)
	err = s.db.WithContext(ctx).Model(&entities.AngleNode{}).
		Where("door_num = ?", doorNum).
		Updates(map[string]any{"save_status": status, "save_status_changed_at": at}).Error
	if err != nil {
		return true, false, fmt.Errorf("set save status %d: %w", doorNum, err)
	}
	return true, true, nil
}

// SetPosition sets the human position label of a sensor.
func (s *Store) SetPosition(ctx context.Context, doorNum int, position string) error {
	res := s.db.WithContext(ctx).Model(&entities.AngleNode{}).
		Where("door_num = ?", doorNum).Update("position", position)
	if res.Error != nil {
		return fmt.Errorf("set position %d: %w", doorNum, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DoorNums lists the ids of every registered tilt sensor.
func (s *Store) DoorNums(ctx context.Context) ([]int, error) {
	var ids []int
	if err := s.db.WithContext(ctx).Model(&entities.AngleNode{}).
		Order("door_num").Pluck("door_num", &ids).Error; err != nil {
		return nil, fmt.Errorf("list door nums: %w", err)
	}
	return ids, nil
}

// SweepResult counts rows flipped by a liveness sweep.
type SweepResult struct {
	GatewaysDown int64
	SensorsDown  int64
}

// SweepLiveness marks sensors and gateways not seen since cutoff as dead and
// the others as alive.
func (s *Store) SweepLiveness(ctx context.Context, cutoff time.Time) (SweepResult, error) {
	cutoff = utc(cutoff)
	var out SweepResult
	err := s.Tx(ctx, func(tx *Store) error {
		db := tx.db.WithContext(ctx)
		res := db.Model(&entities.Gateway{}).
			Where("gateway_alive = ? AND (last_seen IS NULL OR last_seen < ?)", true, cutoff).
			Update("gateway_alive", false)
		if res.Error != nil {
			return res.Error
		}
		out.GatewaysDown = res.RowsAffected
		if err := db.Model(&entities.Gateway{}).
			Where("last_seen >= ?", cutoff).Update("gateway_alive", true).Error; err != nil {
			return err
		}
		res = db.Model(&entities.AngleNode{}).
			Where("node_alive = ? AND (last_seen IS NULL OR last_seen < ?)", true, cutoff).
			Update("node_alive", false)
		if res.Error != nil {
			return res.Error
		}
		out.SensorsDown = res.RowsAffected
		return db.Model(&entities.AngleNode{}).
			Where("last_seen >= ?", cutoff).Update("node_alive", true).Error
	})
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep liveness: %w", err)
	}
	return out, nil
}
