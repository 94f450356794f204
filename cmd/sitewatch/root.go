package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gssiot/sitewatch/internal/config"
	"github.com/gssiot/sitewatch/internal/logging"
)

// app carries the loaded configuration to the subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	log     *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "sitewatch",
		Short:         "Tilt sensor ingestion, calibration and alerting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "YAML config file")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.Bool("log-color", true, "colorize log output")
	pf.String("mqtt-host", "localhost", "MQTT broker host")
	pf.Int("mqtt-port", 1883, "MQTT broker port")
	pf.String("topic-prefix", "GSSIOT/01030369081/", "site topic prefix")
	mustBind(a.v, pf, map[string]string{
		"log.level":         "log-level",
		"log.color":         "log-color",
		"mqtt.host":         "mqtt-host",
		"mqtt.port":         "mqtt-port",
		"mqtt.topic_prefix": "topic-prefix",
	})

	root.PersistentPreRunE = func(*cobra.Command, []string) error {
		cfg, err := config.Load(a.v, a.cfgFile)
		if err != nil {
			return err
		}
		a.cfg = cfg
		a.log = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Color)
		slog.SetDefault(a.log)
		return nil
	}

	root.AddCommand(
		serveCommand(a),
		simulateCommand(a),
		calibrateCommand(a),
		saveStatusCommand(a),
	)
	return root
}

// mustBind binds config keys to flags of fs. A missing flag is a
// programming error.
func mustBind(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		f := fs.Lookup(name)
		if f == nil {
			panic(fmt.Sprintf("flag %q not defined", name))
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(fmt.Sprintf("bind %s: %v", key, err))
		}
	}
}
