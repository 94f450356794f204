// Package history appends corrected readings to the time-series log and
// optionally mirrors them to InfluxDB.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

type Store interface {
	Position(ctx context.Context, serial string, doorNum int) string
	AppendAngleHistory(ctx context.Context, h entities.AngleNodeHistory) (entities.AngleNodeHistory, error)
	AppendNodeHistory(ctx context.Context, h entities.NodeHistory) error
}

// Mirror receives every appended row; it must not block.
type Mirror interface {
	Mirror(h entities.AngleNodeHistory)
}

type Writer struct {
	store  Store
	mirror Mirror
	log    *slog.Logger
}

// NewWriter returns a Writer; mirror may be nil.
func NewWriter(s Store, mirror Mirror, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{store: s, mirror: mirror, log: log.With("component", "history")}
}

// Append records one corrected reading and mirrors it.
func (w *Writer) Append(ctx context.Context, sensorID int, serial string, cx, cy float64, now time.Time) (entities.AngleNodeHistory, error) {
	row, err := w.Record(ctx, w.store, sensorID, serial, cx, cy, now)
	if err != nil {
		return entities.AngleNodeHistory{}, err
	}
	w.Mirror(row)
	return row, nil
}

// Record inserts one corrected reading through st, which may be a
// transaction, without mirroring it. The position label is resolved now,
// so renaming a zone later does not rewrite past rows.
func (w *Writer) Record(ctx context.Context, st Store, sensorID int, serial string, cx, cy float64, now time.Time) (entities.AngleNodeHistory, error) {
	row, err := st.AppendAngleHistory(ctx, entities.AngleNodeHistory{
		GatewaySerial: serial,
		DoorNum:       sensorID,
		AngleX:        cx,
		AngleY:        cy,
		Position:      st.Position(ctx, serial, sensorID),
		CreatedAt:     now,
	})
	if err != nil {
		return entities.AngleNodeHistory{}, fmt.Errorf("append history: %w", err)
	}
	return row, nil
}

// Mirror hands a committed row to the mirror, if there is one.
func (w *Writer) Mirror(row entities.AngleNodeHistory) {
	if w.mirror != nil {
		w.mirror.Mirror(row)
	}
}

// AppendDoor records one door-node state change.
func (w *Writer) AppendDoor(ctx context.Context, serial string, n entities.DoorNode, now time.Time) error {
	err := w.store.AppendNodeHistory(ctx, entities.NodeHistory{
		GatewaySerial: serial,
		DoorNum:       n.DoorNum,
		DoorChk:       n.DoorChk,
		BetChk:        n.BetChk,
		CreatedAt:     now,
	})
	if err != nil {
		return fmt.Errorf("append door history: %w", err)
	}
	return nil
}
