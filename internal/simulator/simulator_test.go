package simulator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gssiot/sitewatch/internal/model/messages"
)

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestGeneratorStaysNearBias(t *testing.T) {
	g := NewGenerator(Tilt{BiasX: 1, BiasY: -1, DriftPerMin: 0.1, Noise: 0.01, MaxDrift: 2}, 42)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		x, y := g.Next(7, start.Add(time.Duration(i)*time.Minute))
		assert.InDelta(t, 1, x, 2.1)
		assert.InDelta(t, -1, y, 2.1)
	}
}

func TestGeneratorIsDeterministic(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a, b := NewGenerator(DefaultTilt, 1), NewGenerator(DefaultTilt, 1)
	for i := 0; i < 5; i++ {
		ax, ay := a.Next(1, at.Add(time.Duration(i)*time.Minute))
		bx, by := b.Next(1, at.Add(time.Duration(i)*time.Minute))
		assert.Equal(t, ax, bx)
		assert.Equal(t, ay, by)
	}
}

func TestShift(t *testing.T) {
	g := NewGenerator(Tilt{}, 3)
	at := time.Now()
	x, _ := g.Next(2, at)
	assert.Equal(t, 0.0, x)
	g.Shift(2, 11)
	x, _ = g.Next(2, at)
	assert.Equal(t, 11.0, x)
}

func TestTickPublishesDecodableReadings(t *testing.T) {
	pub := &fakePublisher{}
	topic := "GSSIOT/01030369081/GATE_ANG/GW010001"
	s := New(Config{Topic: topic, Sensors: []int{1, 2, 3}}, NewGenerator(DefaultTilt, 9), pub, quiet)

	require.NoError(t, s.Tick())
	require.Equal(t, 3, pub.count())
	for i, p := range pub.payloads {
		assert.Equal(t, topic, pub.topics[i])
		r, err := messages.DecodeAngle("0001", p, time.Now())
		require.NoError(t, err)
		assert.Equal(t, i+1, r.SensorID)
	}
}

func TestTickReportsPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	s := New(Config{Topic: "t", Sensors: []int{1, 2}}, NewGenerator(DefaultTilt, 9), pub, quiet)
	assert.ErrorContains(t, s.Tick(), "not connected")
}

func TestRunStopsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	s := New(Config{Topic: "t", Sensors: []int{1}, Interval: 5 * time.Millisecond}, NewGenerator(DefaultTilt, 9), pub, quiet)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop")
	}
}
