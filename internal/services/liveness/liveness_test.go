package liveness

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gssiot/sitewatch/internal/store"
)

var (
	quiet = slog.New(slog.NewTextHandler(io.Discard, nil))
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTouchIsMonotonic(t *testing.T) {
	s := openStore(t)
	tr := NewTracker(s, quiet)
	ctx := context.Background()

	for _, at := range []time.Time{t0, t0.Add(-time.Hour), t0.Add(time.Second), t0} {
		require.NoError(t, tr.Touch(ctx, 101, "0001", at))
	}

	n, err := s.AngleNode(ctx, 101)
	require.NoError(t, err)
	assert.True(t, n.Alive)
	assert.True(t, n.LastSeen.Equal(t0.Add(time.Second)))

	gw, err := s.Gateway(ctx, "0001")
	require.NoError(t, err)
	assert.True(t, gw.Alive)
	assert.True(t, gw.LastSeen.Equal(t0.Add(time.Second)))
}

type failingStore struct {
	sensorErr, gatewayErr error
	gatewayCalls          atomic.Int32
}

func (f *failingStore) TouchSensor(context.Context, int, time.Time) error { return f.sensorErr }
func (f *failingStore) TouchGateway(context.Context, string, time.Time) error {
	f.gatewayCalls.Add(1)
	return f.gatewayErr
}
func (f *failingStore) SweepLiveness(context.Context, time.Time) (store.SweepResult, error) {
	return store.SweepResult{}, errors.New("sweep failed")
}

func TestTouchAttemptsGatewayAfterSensorFailure(t *testing.T) {
	f := &failingStore{sensorErr: errors.New("locked")}
	tr := NewTracker(f, quiet)

	err := tr.Touch(context.Background(), 1, "0001", t0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
	assert.Equal(t, int32(1), f.gatewayCalls.Load())
}

func TestSweeper(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	tr := NewTracker(s, quiet)
	require.NoError(t, tr.Touch(ctx, 1, "old", t0.Add(-2*time.Hour)))
	require.NoError(t, tr.Touch(ctx, 2, "new", t0))

	sw := NewSweeper(s, time.Minute, time.Hour, quiet)
	sw.now = func() time.Time { return t0 }

	res, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.SensorsDown)
	assert.Equal(t, int64(1), res.GatewaysDown)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	sw := NewSweeper(&failingStore{}, 10*time.Millisecond, time.Hour, quiet)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
