// Package store persists sensor, calibration, history and alert records in
// SQLite through GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

var (
	// ErrNotFound is returned by point lookups that match nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a conditional update lost a race.
	ErrConflict = errors.New("store: conflicting update")
)

type Config struct {
	Path    string
	Timeout time.Duration // per-operation timeout applied by callers, 0 = none
	Debug   bool
}

// Store wraps a GORM handle. A Store obtained from Tx is bound to the
// transaction.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database and migrates the schema.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: empty path")
	}
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(cfg.Path+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// SQLite allows one writer; a single connection serialises access
	// instead of surfacing SQLITE_BUSY to the pipeline.
	sqlDB.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(
		&entities.Building{},
		&entities.BuildingThreshold{},
		&entities.Gateway{},
		&entities.AngleNode{},
		&entities.AngleCalibration{},
		&entities.AngleNodeHistory{},
		&entities.AlertLog{},
		&entities.DoorNode{},
		&entities.NodeHistory{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Tx runs fn inside a transaction. fn must only use the Store it is given.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
