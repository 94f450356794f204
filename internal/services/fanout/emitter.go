// Package fanout delivers live updates to real-time subscribers.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gssiot/sitewatch/internal/store"
)

// Emitter delivers payload to subscribers of channel. Delivery is best
// effort and never reports failure to the caller.
type Emitter interface {
	Emit(channel string, payload any)
}

// Multi emits to every emitter in order.
type Multi []Emitter

func (m Multi) Emit(channel string, payload any) {
	for _, e := range m {
		e.Emit(channel, payload)
	}
}

// Channel names.
const GatewayResponses = "gwPubRes"

func AngleChannel(buildingID uint) string { return fmt.Sprintf("%d_angle-nodes", buildingID) }
func DoorChannel(buildingID uint) string  { return fmt.Sprintf("mqtt/building/%d", buildingID) }

// Kind selects the building-scoped channel an update goes to.
type Kind int

const (
	AngleNodes Kind = iota
	DoorNodes
)

func (k Kind) channel(buildingID uint) string {
	if k == DoorNodes {
		return DoorChannel(buildingID)
	}
	return AngleChannel(buildingID)
}

type Directory interface {
	BuildingOf(ctx context.Context, serial string) (uint, error)
}

// Publisher routes updates to the channel of the building owning the
// reporting gateway.
type Publisher struct {
	dir  Directory
	emit Emitter
	log  *slog.Logger
}

func NewPublisher(dir Directory, emit Emitter, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{dir: dir, emit: emit, log: log.With("component", "fanout")}
}

// Publish emits payload for the building of gateway serial. It reports
// whether anything was emitted; gateways without a building are skipped.
func (p *Publisher) Publish(ctx context.Context, serial string, kind Kind, payload any) bool {
	buildingID, err := p.dir.BuildingOf(ctx, serial)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			p.log.Debug("gateway has no building, not publishing", "gateway", serial)
		} else {
			p.log.Warn("building lookup failed, not publishing", "gateway", serial, "err", err)
		}
		return false
	}
	p.PublishTo(buildingID, kind, payload)
	return true
}

// PublishTo emits payload on the channel of an already resolved building.
func (p *Publisher) PublishTo(buildingID uint, kind Kind, payload any) {
	p.emit.Emit(kind.channel(buildingID), payload)
}

// Broadcast emits on a channel that is not building scoped.
func (p *Publisher) Broadcast(channel string, payload any) {
	p.emit.Emit(channel, payload)
}

// Event is one emission captured by Recorder.
type Event struct {
	Channel string
	Payload any
}

// Recorder is an Emitter that keeps every emission, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(channel string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, Event{Channel: channel, Payload: payload})
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
