package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthStatus(t *testing.T) {
	up := func() bool { return true }
	down := func() bool { return false }
	pingOK := func(context.Context) error { return nil }
	pingErr := func(context.Context) error { return errors.New("closed") }

	tests := []struct {
		name   string
		probes Probes
		want   string
	}{
		{"all up", Probes{MQTTConnected: up, StorePing: pingOK}, "ok"},
		{"broker down", Probes{MQTTConnected: down, StorePing: pingOK}, "degraded"},
		{"store down", Probes{MQTTConnected: up, StorePing: pingErr}, "degraded"},
		{"both down", Probes{MQTTConnected: down, StorePing: pingErr}, "down"},
		{"recent mirror error", Probes{
			MQTTConnected:  up,
			StorePing:      pingOK,
			MirrorErrorAge: func() time.Duration { return time.Second },
			MirrorGrace:    time.Minute,
		}, "degraded"},
		{"old mirror error", Probes{
			MQTTConnected:  up,
			StorePing:      pingOK,
			MirrorErrorAge: func() time.Duration { return time.Hour },
			MirrorGrace:    time.Minute,
		}, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.probes).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body healthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
		})
	}
}

func TestReadiness(t *testing.T) {
	p := Probes{
		MQTTConnected: func() bool { return true },
		StorePing:     func(context.Context) error { return nil },
	}
	rec := httptest.NewRecorder()
	NewReadyHandler(p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ready":true}`, rec.Body.String())

	p.StorePing = func(context.Context) error { return errors.New("locked") }
	rec = httptest.NewRecorder()
	NewReadyHandler(p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ready":false}`, rec.Body.String())
}
