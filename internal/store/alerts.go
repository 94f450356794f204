package store

import (
	"context"
	"fmt"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

// AppendAlert inserts one alert row.
func (s *Store) AppendAlert(ctx context.Context, a entities.AlertLog) (entities.AlertLog, error) {
	a.ID = 0
	a.CreatedAt = utc(a.CreatedAt)
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return entities.AlertLog{}, fmt.Errorf("append alert %s/%d: %w", a.GatewaySerial, a.DoorNum, err)
	}
	return a, nil
}

// AlertFilter narrows Alerts; zero fields match everything. DoorNum is a
// pointer because 0 is a valid sensor id.
type AlertFilter struct {
	BuildingID uint
	DoorNum    *int
	Level      entities.AlertLevel
	Limit      int
}

// Alerts lists alert rows, newest first.
func (s *Store) Alerts(ctx context.Context, f AlertFilter) ([]entities.AlertLog, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if f.BuildingID != 0 {
		q = q.Where("building_id = ?", f.BuildingID)
	}
	if f.DoorNum != nil {
		q = q.Where("door_num = ?", *f.DoorNum)
	}
	if f.Level != entities.LevelNone {
		q = q.Where("level = ?", f.Level)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []entities.AlertLog
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}
