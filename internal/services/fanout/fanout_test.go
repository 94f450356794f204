package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gssiot/sitewatch/internal/metrics"
	"github.com/gssiot/sitewatch/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeDirectory map[string]uint

func (f fakeDirectory) BuildingOf(_ context.Context, serial string) (uint, error) {
	if serial == "broken" {
		return 0, errors.New("db down")
	}
	id, ok := f[serial]
	if !ok {
		return 0, store.ErrNotFound
	}
	return id, nil
}

func TestPublisherRoutesByBuilding(t *testing.T) {
	rec := &Recorder{}
	p := NewPublisher(fakeDirectory{"0001": 7}, rec, quiet)
	ctx := context.Background()

	assert.True(t, p.Publish(ctx, "0001", AngleNodes, "a"))
	assert.True(t, p.Publish(ctx, "0001", DoorNodes, "d"))
	assert.False(t, p.Publish(ctx, "0002", AngleNodes, "lost"))
	assert.False(t, p.Publish(ctx, "broken", AngleNodes, "lost"))
	p.Broadcast(GatewayResponses, "r")

	assert.Equal(t, []Event{
		{Channel: "7_angle-nodes", Payload: "a"},
		{Channel: "mqtt/building/7", Payload: "d"},
		{Channel: "gwPubRes", Payload: "r"},
	}, rec.Events())
}

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	Multi{a, b}.Emit("c", 1)
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

type fakeMessagePublisher struct {
	topics   []string
	payloads []string
	err      error
}

func (f *fakeMessagePublisher) Publish(topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, string(payload))
	return nil
}

func TestMQTTEmitter(t *testing.T) {
	pub := &fakeMessagePublisher{}
	m := metrics.NewNop()
	e := NewMQTTEmitter(pub, "live/", m, quiet)

	e.Emit("7_angle-nodes", map[string]any{"doorNum": 1})
	require.Len(t, pub.topics, 1)
	assert.Equal(t, "live/7_angle-nodes", pub.topics[0])
	assert.JSONEq(t, `{"doorNum":1}`, pub.payloads[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FanoutEmits.WithLabelValues("mqtt")))

	pub.err = errors.New("not connected")
	e.Emit("x", 1)
	e.Emit("x", func() {})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FanoutEmits.WithLabelValues("mqtt")))
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h := NewHub(nil, quiet)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubDeliversSubscribedChannels(t *testing.T) {
	h, url := startHub(t)

	only := dial(t, url+"?channels=7_angle-nodes")
	all := dial(t, url)
	require.Eventually(t, func() bool { return h.Subscribers() == 2 }, 2*time.Second, 10*time.Millisecond)

	h.Emit("8_angle-nodes", map[string]any{"doorNum": 2})
	h.Emit("7_angle-nodes", map[string]any{"doorNum": 1})

	env := readEnvelope(t, only)
	assert.Equal(t, "7_angle-nodes", env.Channel)
	assert.EqualValues(t, 1, env.Payload.(map[string]any)["doorNum"])

	assert.Equal(t, "8_angle-nodes", readEnvelope(t, all).Channel)
	assert.Equal(t, "7_angle-nodes", readEnvelope(t, all).Channel)
}

func TestHubUnregistersOnClose(t *testing.T) {
	h, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return h.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubEmitAfterStopDoesNotBlock(t *testing.T) {
	h := NewHub(nil, quiet)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.Run(ctx))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*sendBuffer; i++ {
			h.Emit("c", i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked")
	}
}

func TestParseChannels(t *testing.T) {
	assert.Equal(t, map[string]bool{"a": true, "b": true}, parseChannels(" a, b,,"))
	assert.Empty(t, parseChannels(""))
}
