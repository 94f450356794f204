// Package metrics holds the Prometheus instruments of the ingestion pipeline.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names used as the stage label of PipelineFailures.
const (
	StageDecode      = "decode"
	StageLiveness    = "liveness"
	StageCalibration = "calibration"
	StageHistory     = "history"
	StageAlert       = "alert"
	StageFanout      = "fanout"
	StageDoor        = "door"
	StagePanic       = "panic"
)

type Metrics struct {
	Messages          *prometheus.CounterVec
	DecodeErrors      *prometheus.CounterVec
	PipelineFailures  *prometheus.CounterVec
	SaveSkipped       prometheus.Counter
	CalibrationCommit prometheus.Counter
	Alerts            *prometheus.CounterVec
	FanoutEmits       *prometheus.CounterVec
	FanoutDropped     prometheus.Counter
	ProcessDuration   *prometheus.HistogramVec
	QueueDepth        prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the instruments and registers them on registry. A nil
// registry gets a fresh one.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{registry: registry}
	m.init()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// NewNop returns unregistered metrics, for components built without a registry.
func NewNop() *Metrics {
	m := &Metrics{}
	m.init()
	return m
}

func (m *Metrics) init() {
	m.Messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitewatch_messages_total",
		Help: "Messages received, by kind (angle, door, gateway_response, unknown).",
	}, []string{"kind"})
	m.DecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitewatch_decode_errors_total",
		Help: "Payloads dropped because they could not be decoded, by kind.",
	}, []string{"kind"})
	m.PipelineFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitewatch_pipeline_failures_total",
		Help: "Pipeline stage failures, by stage.",
	}, []string{"stage"})
	m.SaveSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitewatch_save_skipped_total",
		Help: "Readings not persisted because the sensor's save gate is off.",
	})
	m.CalibrationCommit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitewatch_calibration_commits_total",
		Help: "Calibration rounds that committed a new offset.",
	})
	m.Alerts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitewatch_alerts_total",
		Help: "Threshold alerts recorded, by level and metric.",
	}, []string{"level", "metric"})
	m.FanoutEmits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitewatch_fanout_emits_total",
		Help: "Live updates emitted, by emitter.",
	}, []string{"emitter"})
	m.FanoutDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sitewatch_fanout_dropped_total",
		Help: "Live updates dropped because a subscriber was too slow.",
	})
	m.ProcessDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitewatch_process_duration_seconds",
		Help:    "Time spent processing one message, by kind.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"kind"})
	m.QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sitewatch_queue_depth",
		Help: "Messages waiting in the sensor worker queues.",
	})
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Messages, m.DecodeErrors, m.PipelineFailures, m.SaveSkipped,
		m.CalibrationCommit, m.Alerts, m.FanoutEmits, m.FanoutDropped,
		m.ProcessDuration, m.QueueDepth,
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Fail counts one failure of stage.
func (m *Metrics) Fail(stage string) {
	m.PipelineFailures.WithLabelValues(stage).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
