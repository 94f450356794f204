package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

// Gateway looks a gateway up by serial number.
func (s *Store) Gateway(ctx context.Context, serial string) (entities.Gateway, error) {
	var gw entities.Gateway
	if err := s.db.WithContext(ctx).Where("serial_number = ?", serial).Take(&gw).Error; err != nil {
		return entities.Gateway{}, notFound(err)
	}
	return gw, nil
}

// BuildingOf returns the building a gateway is attached to.
func (s *Store) BuildingOf(ctx context.Context, serial string) (uint, error) {
	gw, err := s.Gateway(ctx, serial)
	if err != nil {
		return 0, err
	}
	if gw.BuildingID == nil {
		return 0, ErrNotFound
	}
	return *gw.BuildingID, nil
}

// Thresholds returns the alert levels of a building for metric: the
// metric's own row when present, otherwise the building-wide levels.
func (s *Store) Thresholds(ctx context.Context, buildingID uint, metric string) (entities.AlertThresholds, error) {
	var row entities.BuildingThreshold
	err := s.db.WithContext(ctx).
		Where("building_id = ? AND metric = ?", buildingID, metric).Take(&row).Error
	if err == nil {
		return entities.AlertThresholds{Yellow: row.Yellow, Red: row.Red}, nil
	}
	if err = notFound(err); !errors.Is(err, ErrNotFound) {
		return entities.AlertThresholds{}, err
	}

	var b entities.Building
	if err := s.db.WithContext(ctx).Where("id = ?", buildingID).Take(&b).Error; err != nil {
		return entities.AlertThresholds{}, notFound(err)
	}
	if b.AlarmYellow == nil || b.AlarmRed == nil {
		return entities.AlertThresholds{}, ErrNotFound
	}
	return entities.AlertThresholds{Yellow: *b.AlarmYellow, Red: *b.AlarmRed}, nil
}

// Position resolves the position label recorded with a history row: the
// gateway's zone first, then the sensor's own label. Lookup failures fall
// through to the next source.
func (s *Store) Position(ctx context.Context, serial string, doorNum int) string {
	if gw, err := s.Gateway(ctx, serial); err == nil && gw.ZoneName != "" {
		return gw.ZoneName
	}
	if n, err := s.AngleNode(ctx, doorNum); err == nil && n.Position != "" {
		return n.Position
	}
	return ""
}

// CreateBuilding inserts a building and returns it with its id.
func (s *Store) CreateBuilding(ctx context.Context, b entities.Building) (entities.Building, error) {
	if err := s.db.WithContext(ctx).Create(&b).Error; err != nil {
		return entities.Building{}, fmt.Errorf("create building: %w", err)
	}
	return b, nil
}

// SetThreshold upserts the levels of one metric for a building.
func (s *Store) SetThreshold(ctx context.Context, buildingID uint, metric string, th entities.AlertThresholds) error {
	var row entities.BuildingThreshold
	err := s.db.WithContext(ctx).
		Where(entities.BuildingThreshold{BuildingID: buildingID, Metric: metric}).
		Assign(map[string]any{"yellow": th.Yellow, "red": th.Red}).
		FirstOrCreate(&row).Error
	if err != nil {
		return fmt.Errorf("set threshold %d/%s: %w", buildingID, metric, err)
	}
	return nil
}

// AttachGateway registers a gateway (if new) and sets its building and zone.
// A nil buildingID detaches it.
func (s *Store) AttachGateway(ctx context.Context, serial string, buildingID *uint, zone string) (entities.Gateway, error) {
	var gw entities.Gateway
	err := s.db.WithContext(ctx).
		Where(entities.Gateway{SerialNumber: serial}).
		Assign(map[string]any{"building_id": buildingID, "zone_name": zone}).
		FirstOrCreate(&gw).Error
	if err != nil {
		return entities.Gateway{}, fmt.Errorf("attach gateway %s: %w", serial, err)
	}
	return gw, nil
}
