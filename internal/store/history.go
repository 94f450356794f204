package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

// AppendAngleHistory inserts one history row.
func (s *Store) AppendAngleHistory(ctx context.Context, h entities.AngleNodeHistory) (entities.AngleNodeHistory, error) {
	h.ID = 0
	h.CreatedAt = utc(h.CreatedAt)
	if err := s.db.WithContext(ctx).Create(&h).Error; err != nil {
		return entities.AngleNodeHistory{}, fmt.Errorf("append angle history %d: %w", h.DoorNum, err)
	}
	return h, nil
}

// AngleHistory returns the rows of a sensor since from, oldest first.
func (s *Store) AngleHistory(ctx context.Context, doorNum int, from time.Time) ([]entities.AngleNodeHistory, error) {
	var out []entities.AngleNodeHistory
	err := s.db.WithContext(ctx).
		Where("door_num = ? AND created_at >= ?", doorNum, from.UTC()).
		Order("created_at, id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("angle history %d: %w", doorNum, err)
	}
	return out, nil
}

// AppendNodeHistory inserts one door history row.
func (s *Store) AppendNodeHistory(ctx context.Context, h entities.NodeHistory) error {
	h.ID = 0
	h.CreatedAt = utc(h.CreatedAt)
	if err := s.db.WithContext(ctx).Create(&h).Error; err != nil {
		return fmt.Errorf("append node history %d: %w", h.DoorNum, err)
	}
	return nil
}

// NodeHistory returns the door history rows of a node, oldest first.
func (s *Store) NodeHistory(ctx context.Context, doorNum int) ([]entities.NodeHistory, error) {
	var out []entities.NodeHistory
	if err := s.db.WithContext(ctx).Where("door_num = ?", doorNum).
		Order("created_at, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("node history %d: %w", doorNum, err)
	}
	return out, nil
}
