// Package config loads service settings from defaults, an optional YAML file,
// SITEWATCH_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type Config struct {
	MQTT      MQTT      `mapstructure:"mqtt"`
	Store     Store     `mapstructure:"store"`
	Influx    Influx    `mapstructure:"influx"`
	Ingest    Ingest    `mapstructure:"ingest"`
	Heartbeat Heartbeat `mapstructure:"heartbeat"`
	HTTP      struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	GRPC struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"grpc"`
	Log Log `mapstructure:"log"`
}

type MQTT struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	User                string `mapstructure:"user"`
	Password            string `mapstructure:"password"`
	ClientID            string `mapstructure:"client_id"`
	TopicPrefix         string `mapstructure:"topic_prefix"`
	GatewaySerialDigits int    `mapstructure:"gateway_serial_digits"`
	ConnectRetries      int    `mapstructure:"connect_retries"`
	FanoutPrefix        string `mapstructure:"fanout_prefix"`
}

type Store struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
	Debug   bool          `mapstructure:"debug"`
}

// Influx configures the optional time-series mirror of the history.
type Influx struct {
	URL             string        `mapstructure:"url"`
	Token           string        `mapstructure:"token"`
	Org             string        `mapstructure:"org"`
	Bucket          string        `mapstructure:"bucket"`
	Measurement     string        `mapstructure:"measurement"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerOpen     time.Duration `mapstructure:"breaker_open"`
}

func (i Influx) Enabled() bool { return i.URL != "" }

type Ingest struct {
	Workers                int           `mapstructure:"workers"`
	QueueSize              int           `mapstructure:"queue_size"`
	AlertMetrics           []string      `mapstructure:"alert_metrics"`
	CompletingSampleOffset string        `mapstructure:"completing_sample_offset"`
	DedupTTL               time.Duration `mapstructure:"dedup_ttl"`
}

type Heartbeat struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Window   time.Duration `mapstructure:"window"`
}

type Log struct {
	Level string `mapstructure:"level"`
	Color bool   `mapstructure:"color"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.user", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.topic_prefix", "GSSIOT/01030369081/")
	v.SetDefault("mqtt.gateway_serial_digits", 4)
	v.SetDefault("mqtt.connect_retries", 5)
	v.SetDefault("mqtt.fanout_prefix", "sitewatch/live/")

	v.SetDefault("store.path", "sitewatch.db")
	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("store.debug", false)

	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("influx.measurement", "angle_node_history")
	v.SetDefault("influx.breaker_failures", 5)
	v.SetDefault("influx.breaker_open", 30*time.Second)

	v.SetDefault("ingest.workers", 8)
	v.SetDefault("ingest.queue_size", 256)
	v.SetDefault("ingest.alert_metrics", []string{"angle_x", "angle_y"})
	v.SetDefault("ingest.completing_sample_offset", "pre")
	v.SetDefault("ingest.dedup_ttl", 10*time.Minute)

	v.SetDefault("heartbeat.enabled", true)
	v.SetDefault("heartbeat.interval", 5*time.Minute)
	v.SetDefault("heartbeat.window", time.Hour)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", ":50051")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", true)
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("SITEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (when not empty) into v and decodes the result.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "sitewatch-" + uuid.NewString()
	}
	cfg.Ingest.AlertMetrics = splitList(cfg.Ingest.AlertMetrics)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Ingest.Workers <= 0 {
		errs = append(errs, fmt.Errorf("ingest.workers must be positive, got %d", c.Ingest.Workers))
	}
	if c.Ingest.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("ingest.queue_size must not be negative, got %d", c.Ingest.QueueSize))
	}
	switch c.Ingest.CompletingSampleOffset {
	case "pre", "post":
	default:
		errs = append(errs, fmt.Errorf("ingest.completing_sample_offset must be pre or post, got %q", c.Ingest.CompletingSampleOffset))
	}
	if c.MQTT.GatewaySerialDigits < 0 {
		errs = append(errs, errors.New("mqtt.gateway_serial_digits must not be negative"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Heartbeat.Enabled && (c.Heartbeat.Interval <= 0 || c.Heartbeat.Window <= 0) {
		errs = append(errs, errors.New("heartbeat.interval and heartbeat.window must be positive"))
	}
	return errors.Join(errs...)
}

// splitList accepts both a YAML list and a single comma-separated value.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
