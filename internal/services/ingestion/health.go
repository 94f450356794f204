package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Probes are the dependencies reported by the health endpoints. Any of them
// may be nil when the component is not configured.
type Probes struct {
	MQTTConnected func() bool
	StorePing     func(ctx context.Context) error
	// MirrorErrorAge reports the time since the history mirror last failed.
	MirrorErrorAge func() time.Duration
	// MirrorGrace is how long after a mirror failure the service counts
	// as degraded.
	MirrorGrace time.Duration
}

type healthStatus struct {
	Status          string   `json:"status"`
	MQTTConnected   bool     `json:"mqtt_connected"`
	StoreOK         bool     `json:"store_ok"`
	LastWriteErrorS *float64 `json:"last_write_error_age_sec,omitempty"`
}

func (p Probes) check(ctx context.Context) healthStatus {
	st := healthStatus{
		MQTTConnected: p.MQTTConnected != nil && p.MQTTConnected(),
	}
	if p.StorePing != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		st.StoreOK = p.StorePing(ctx) == nil
		cancel()
	}
	mirrorOK := true
	if p.MirrorErrorAge != nil {
		age := p.MirrorErrorAge()
		s := age.Seconds()
		st.LastWriteErrorS = &s
		mirrorOK = age > p.MirrorGrace
	}

	switch {
	case st.MQTTConnected && st.StoreOK && mirrorOK:
		st.Status = "ok"
	case st.MQTTConnected || st.StoreOK:
		st.Status = "degraded"
	default:
		st.Status = "down"
	}
	return st
}

// NewHealthHandler serves /healthz: always 200 with a status summary.
func NewHealthHandler(p Probes) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.check(r.Context()))
	})
}

// NewReadyHandler serves /readyz: 200 only when the broker and the store
// are both reachable.
func NewReadyHandler(p Probes) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := p.check(r.Context())
		ready := st.MQTTConnected && st.StoreOK
		w.Header().Set("Content-Type", "application/json")
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(struct {
			Ready bool `json:"ready"`
		}{ready})
	})
}
