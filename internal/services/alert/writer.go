package alert

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gssiot/sitewatch/internal/metrics"
	"github.com/gssiot/sitewatch/internal/model/entities"
)

type Store interface {
	AppendAlert(ctx context.Context, a entities.AlertLog) (entities.AlertLog, error)
}

// Writer appends alert records. Records with no level are ignored.
type Writer struct {
	store   Store
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewWriter(s Store, m *metrics.Metrics, log *slog.Logger) *Writer {
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Writer{store: s, metrics: m, log: log.With("component", "alert")}
}

func (w *Writer) Write(ctx context.Context, a entities.AlertLog) (entities.AlertLog, error) {
	if a.Level == entities.LevelNone {
		return a, nil
	}
	saved, err := w.store.AppendAlert(ctx, a)
	if err != nil {
		return entities.AlertLog{}, fmt.Errorf("write alert: %w", err)
	}
	w.metrics.Alerts.WithLabelValues(string(a.Level), a.Metric).Inc()
	w.log.Info("threshold alert", "level", a.Level, "metric", a.Metric, "value", a.Value,
		"threshold", a.Threshold, "sensor", a.DoorNum, "gateway", a.GatewaySerial, "building", a.BuildingID)
	return saved, nil
}
