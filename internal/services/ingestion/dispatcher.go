// Package ingestion routes transport messages to the processing pipelines,
// keeping readings of one sensor in arrival order.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/sync/errgroup"

	"github.com/gssiot/sitewatch/internal/metrics"
	"github.com/gssiot/sitewatch/internal/model"
	"github.com/gssiot/sitewatch/internal/model/messages"
)

// ErrStopped is returned by Submit once the dispatcher has shut down.
var ErrStopped = errors.New("ingestion: dispatcher stopped")

// Handler processes decoded messages. Implementations must not panic, but
// the dispatcher survives it if they do.
type Handler interface {
	HandleAngle(ctx context.Context, r model.SensorReading)
	HandleDoor(ctx context.Context, r model.DoorReading)
	HandleResponse(ctx context.Context, serial string, payload []byte, body map[string]any)
}

type Options struct {
	Workers   int // default 8
	QueueSize int // per worker, default 256
	Now       func() time.Time
}

type job struct {
	kind     string
	serial   string
	angle    model.SensorReading
	door     model.DoorReading
	payload  []byte
	response map[string]any
	queuedAt time.Time
}

// Dispatcher decodes messages and hands them to a fixed set of workers.
// Messages for the same sensor always go to the same worker, so they are
// processed one at a time in arrival order.
type Dispatcher struct {
	topics  Topics
	handler Handler
	opts    Options
	shards  []chan job
	depth   atomic.Int64
	stopped chan struct{}
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewDispatcher(topics Topics, h Handler, opts Options, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		topics:  topics,
		handler: h,
		opts:    opts,
		shards:  make([]chan job, opts.Workers),
		stopped: make(chan struct{}),
		metrics: m,
		log:     log.With("component", "dispatcher"),
	}
	for i := range d.shards {
		d.shards[i] = make(chan job, opts.QueueSize)
	}
	return d
}

// Run starts the workers and blocks until ctx is done. Messages still queued
// at that point are dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.stopped)
	g, ctx := errgroup.WithContext(ctx)
	for i, ch := range d.shards {
		i, ch := i, ch
		g.Go(func() error {
			d.work(ctx, i, ch)
			return nil
		})
	}
	d.log.Info("dispatcher started", "workers", len(d.shards), "queue_size", d.opts.QueueSize)
	err := g.Wait()
	d.log.Info("dispatcher stopped", "dropped", d.depth.Load())
	return err
}

// HandleMessage adapts Submit to the broker consumer callback.
func (d *Dispatcher) HandleMessage(_ string, msg mqtt.Message) error {
	return d.Submit(context.Background(), msg.Topic(), msg.Payload())
}

// Submit decodes one message and queues it on its sensor's worker, blocking
// while that worker's queue is full. Decode failures are returned and the
// message is dropped; unknown topics are ignored.
func (d *Dispatcher) Submit(ctx context.Context, topic string, payload []byte) error {
	now := d.opts.Now()
	kind, serial := d.topics.Route(topic)
	j := job{kind: kind, serial: serial, queuedAt: now}
	var key uint32

	switch kind {
	case KindAngle:
		r, err := messages.DecodeAngle(serial, payload, now)
		if err != nil {
			return d.decodeFailed(kind, topic, err)
		}
		j.angle = r
		key = uint32(r.SensorID)
	case KindDoor:
		r, err := messages.DecodeDoor(serial, payload, now)
		if err != nil {
			return d.decodeFailed(kind, topic, err)
		}
		j.door = r
		key = uint32(r.DoorNum)
	case KindResponse:
		body, err := messages.DecodeGatewayResponse(payload)
		if err != nil {
			return d.decodeFailed(kind, topic, err)
		}
		j.payload = append([]byte(nil), payload...)
		j.response = body
		key = hashString(serial)
	default:
		d.metrics.Messages.WithLabelValues("unknown").Inc()
		d.log.Debug("ignoring message on unhandled topic", "topic", topic)
		return nil
	}
	d.metrics.Messages.WithLabelValues(kindLabel(kind)).Inc()

	select {
	case d.shards[key%uint32(len(d.shards))] <- j:
		d.metrics.QueueDepth.Set(float64(d.depth.Add(1)))
		return nil
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) decodeFailed(kind, topic string, err error) error {
	d.metrics.DecodeErrors.WithLabelValues(kindLabel(kind)).Inc()
	d.metrics.Fail(metrics.StageDecode)
	return fmt.Errorf("drop message on %s: %w", topic, err)
}

func (d *Dispatcher) work(ctx context.Context, id int, ch <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-ch:
			d.metrics.QueueDepth.Set(float64(d.depth.Add(-1)))
			d.process(ctx, id, j)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, worker int, j job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.Fail(metrics.StagePanic)
			d.log.Error("panic while processing message", "worker", worker, "kind", j.kind,
				"gateway", j.serial, "panic", r, "stack", string(debug.Stack()))
		}
		d.metrics.ProcessDuration.WithLabelValues(kindLabel(j.kind)).Observe(time.Since(start).Seconds())
	}()

	switch j.kind {
	case KindAngle:
		d.handler.HandleAngle(ctx, j.angle)
	case KindDoor:
		d.handler.HandleDoor(ctx, j.door)
	case KindResponse:
		d.handler.HandleResponse(ctx, j.serial, j.payload, j.response)
	}
}

func kindLabel(kind string) string {
	switch kind {
	case KindAngle:
		return "angle"
	case KindDoor:
		return "door"
	case KindResponse:
		return "gateway_response"
	default:
		return "unknown"
	}
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
