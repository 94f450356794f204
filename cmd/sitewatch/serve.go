package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/gssiot/sitewatch/internal/config"
	"github.com/gssiot/sitewatch/internal/metrics"
	"github.com/gssiot/sitewatch/internal/services/alert"
	"github.com/gssiot/sitewatch/internal/services/calibration"
	"github.com/gssiot/sitewatch/internal/services/fanout"
	"github.com/gssiot/sitewatch/internal/services/history"
	"github.com/gssiot/sitewatch/internal/services/ingestion"
	"github.com/gssiot/sitewatch/internal/services/liveness"
	"github.com/gssiot/sitewatch/internal/services/operator"
	"github.com/gssiot/sitewatch/internal/services/query"
	"github.com/gssiot/sitewatch/internal/store"
	"github.com/gssiot/sitewatch/pkg/broker"
	"github.com/gssiot/sitewatch/pkg/dedup"
)

const shutdownGrace = 5 * time.Second

func serveCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Consume gateway telemetry and serve the live, query, health and operator endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), a.cfg, a.log)
		},
	}
	f := cmd.Flags()
	f.String("store-path", "sitewatch.db", "SQLite database file")
	f.String("http-addr", ":8080", "listen address for /healthz, /readyz, /metrics and /ws")
	f.String("grpc-addr", ":50051", "listen address for operator commands")
	f.Int("workers", 8, "ingestion workers")
	f.String("completing-sample-offset", "pre", "offset applied to the sample completing a calibration round: pre or post")
	mustBind(a.v, f, map[string]string{
		"store.path":                      "store-path",
		"http.addr":                       "http-addr",
		"grpc.addr":                       "grpc-addr",
		"ingest.workers":                  "workers",
		"ingest.completing_sample_offset": "completing-sample-offset",
	})
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	st, err := store.Open(store.Config{Path: cfg.Store.Path, Debug: cfg.Store.Debug})
	if err != nil {
		return err
	}
	defer st.Close()

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
	}

	client, err := broker.Connect(ctx, broker.Config{
		Host:     cfg.MQTT.Host,
		Port:     cfg.MQTT.Port,
		User:     cfg.MQTT.User,
		Password: cfg.MQTT.Password,
		ClientID: cfg.MQTT.ClientID,
		Retries:  cfg.MQTT.ConnectRetries,
	}, log)
	if err != nil {
		_ = lis.Close()
		return err
	}
	defer broker.Close(client)

	g, ctx := errgroup.WithContext(ctx)

	hub := fanout.NewHub(m, log)
	g.Go(func() error { return hub.Run(ctx) })
	emit := fanout.Multi{hub}
	if cfg.MQTT.FanoutPrefix != "" {
		emit = append(emit, fanout.NewMQTTEmitter(broker.NewPublisher(client), cfg.MQTT.FanoutPrefix, m, log))
	}

	probes := ingestion.Probes{
		MQTTConnected: client.IsConnected,
		StorePing:     st.Ping,
		MirrorGrace:   time.Minute,
	}
	var mirror history.Mirror
	if cfg.Influx.Enabled() {
		ic := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
		defer ic.Close()
		im := history.NewInfluxMirror(ic.WriteAPIBlocking(cfg.Influx.Org, cfg.Influx.Bucket), history.MirrorConfig{
			Measurement:     cfg.Influx.Measurement,
			BreakerFailures: cfg.Influx.BreakerFailures,
			BreakerOpen:     cfg.Influx.BreakerOpen,
		}, log)
		g.Go(func() error { return im.Run(ctx) })
		mirror = im
		probes.MirrorErrorAge = im.LastErrorAge
	}

	engine := calibration.NewEngine(st, nil, calibration.Options{
		CompletingSample: calibration.OffsetMode(cfg.Ingest.CompletingSampleOffset),
	}, log)
	pipeline := ingestion.NewPipeline(ingestion.Deps{
		Tracker:      liveness.NewTracker(st, log),
		Calibrator:   engine,
		History:      history.NewWriter(st, mirror, log),
		Evaluator:    alert.NewEvaluator(st, log),
		Alerts:       alert.NewWriter(st, m, log),
		Fanout:       fanout.NewPublisher(st, emit, log),
		Doors:        st,
		Dedup:        dedup.New(cfg.Ingest.DedupTTL),
		Metrics:      m,
		Log:          log,
		StepTimeout:  cfg.Store.Timeout,
		AlertMetrics: cfg.Ingest.AlertMetrics,
	})

	topics := ingestion.Topics{Prefix: cfg.MQTT.TopicPrefix, SerialDigits: cfg.MQTT.GatewaySerialDigits}
	d := ingestion.NewDispatcher(topics, pipeline, ingestion.Options{
		Workers:   cfg.Ingest.Workers,
		QueueSize: cfg.Ingest.QueueSize,
	}, m, log)
	g.Go(func() error { return d.Run(ctx) })

	consumer := broker.NewConsumer(client, topics.Filters(), 1, d.HandleMessage, log)
	g.Go(func() error { return consumer.Consume(ctx) })

	if cfg.Heartbeat.Enabled {
		sw := liveness.NewSweeper(st, cfg.Heartbeat.Interval, cfg.Heartbeat.Window, log)
		g.Go(func() error { return sw.Run(ctx) })
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", ingestion.NewHealthHandler(probes))
	mux.Handle("/readyz", ingestion.NewReadyHandler(probes))
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/ws", hub)
	query.New(st, cfg.Store.Timeout, log).Register(mux)
	hs := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		log.Info("http listening", "addr", hs.Addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	gs := grpc.NewServer(grpc.UnaryInterceptor(operator.LoggingInterceptor(log)))
	operator.Register(gs, operator.NewServer(engine, log))
	g.Go(func() error {
		log.Info("grpc listening", "addr", lis.Addr().String())
		return gs.Serve(lis)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		gs.GracefulStop()
		return hs.Shutdown(sctx)
	})

	return g.Wait()
}
