package store

import (
	"context"
	"fmt"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

// UpdateDoorNode applies a door-node update to an existing node and returns
// the stored node. Unknown nodes yield ErrNotFound.
func (s *Store) UpdateDoorNode(ctx context.Context, doorNum, doorChk, betChk int, betChk2 *int) (entities.DoorNode, error) {
	set := map[string]any{"door_chk": doorChk, "bet_chk": betChk}
	if betChk2 != nil {
		set["bet_chk2"] = *betChk2
	}
	res := s.db.WithContext(ctx).Model(&entities.DoorNode{}).Where("door_num = ?", doorNum).Updates(set)
	if res.Error != nil {
		return entities.DoorNode{}, fmt.Errorf("update door node %d: %w", doorNum, res.Error)
	}
	if res.RowsAffected == 0 {
		return entities.DoorNode{}, ErrNotFound
	}
	var n entities.DoorNode
	if err := s.db.WithContext(ctx).Where("door_num = ?", doorNum).Take(&n).Error; err != nil {
		return entities.DoorNode{}, notFound(err)
	}
	return n, nil
}

// CreateDoorNode registers a door node.
func (s *Store) CreateDoorNode(ctx context.Context, n entities.DoorNode) error {
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("create door node %d: %w", n.DoorNum, err)
	}
	return nil
}
