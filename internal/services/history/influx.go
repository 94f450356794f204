package history

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/gssiot/sitewatch/internal/model/entities"
)

// PointWriter is the subset of api.WriteAPIBlocking the mirror uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type MirrorConfig struct {
	Measurement     string
	QueueSize       int           // default 1024
	WriteTimeout    time.Duration // default 5s
	BreakerFailures uint32        // consecutive failures that open the breaker, default 5
	BreakerOpen     time.Duration // default 30s
}

// InfluxMirror copies history rows to InfluxDB in the background. Rows are
// dropped when the queue is full or the breaker is open; the SQL history
// stays authoritative.
type InfluxMirror struct {
	api     PointWriter
	cfg     MirrorConfig
	cb      *gobreaker.CircuitBreaker
	queue   chan entities.AngleNodeHistory
	dropped atomic.Int64
	written atomic.Int64

	mu      sync.RWMutex
	lastErr time.Time

	log *slog.Logger
}

func NewInfluxMirror(api PointWriter, cfg MirrorConfig, log *slog.Logger) *InfluxMirror {
	if cfg.Measurement == "" {
		cfg.Measurement = "angle_node_history"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "influx-mirror")
	m := &InfluxMirror{
		api:     api,
		cfg:     cfg,
		queue:   make(chan entities.AngleNodeHistory, cfg.QueueSize),
		lastErr: time.Now().Add(-24 * time.Hour),
		log:     log,
	}
	m.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "influx",
		Timeout: cfg.BreakerOpen,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return m
}

// Mirror queues h for writing without blocking.
func (m *InfluxMirror) Mirror(h entities.AngleNodeHistory) {
	select {
	case m.queue <- h:
	default:
		m.dropped.Add(1)
	}
}

// Run writes queued rows until ctx is done.
func (m *InfluxMirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case h := <-m.queue:
			m.write(ctx, h)
		}
	}
}

func (m *InfluxMirror) write(ctx context.Context, h entities.AngleNodeHistory) {
	_, err := m.cb.Execute(func() (any, error) {
		wctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
		defer cancel()
		return nil, m.api.WritePoint(wctx, HistoryToPoint(m.cfg.Measurement, h))
	})
	switch {
	case err == nil:
		m.written.Add(1)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		m.dropped.Add(1)
	default:
		m.mu.Lock()
		m.lastErr = time.Now()
		m.mu.Unlock()
		m.log.Warn("influx write error", "sensor", h.DoorNum, "err", err)
	}
}

// LastErrorAge is the time since the last failed write.
func (m *InfluxMirror) LastErrorAge() time.Duration {
	if m == nil {
		return 99999 * time.Hour
	}
	m.mu.RLock()
	t := m.lastErr
	m.mu.RUnlock()
	return time.Since(t)
}

func (m *InfluxMirror) Dropped() int64 { return m.dropped.Load() }
func (m *InfluxMirror) Written() int64 { return m.written.Load() }

// HistoryToPoint turns a history row into a point tagged by gateway, sensor
// and position.
func HistoryToPoint(measurement string, h entities.AngleNodeHistory) *write.Point {
	tags := map[string]string{
		"gateway_serial": h.GatewaySerial,
		"door_num":       strconv.Itoa(h.DoorNum),
	}
	if h.Position != "" {
		tags["position"] = h.Position
	}
	fields := map[string]interface{}{
		"angle_x": h.AngleX,
		"angle_y": h.AngleY,
	}
	return influxdb2.NewPoint(measurement, tags, fields, h.CreatedAt)
}
