package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/gssiot/sitewatch/internal/services/ingestion"
	"github.com/gssiot/sitewatch/internal/simulator"
	"github.com/gssiot/sitewatch/pkg/broker"
)

func simulateCommand(a *app) *cobra.Command {
	var (
		gateway  string
		sensors  []int
		interval time.Duration
		seed     int64
		shift    float64
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Publish synthetic tilt readings as a gateway would",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := broker.Connect(ctx, broker.Config{
				Host:         a.cfg.MQTT.Host,
				Port:         a.cfg.MQTT.Port,
				User:         a.cfg.MQTT.User,
				Password:     a.cfg.MQTT.Password,
				ClientID:     a.cfg.MQTT.ClientID + "-sim",
				Retries:      a.cfg.MQTT.ConnectRetries,
				CleanSession: true,
			}, a.log)
			if err != nil {
				return err
			}
			defer broker.Close(client)

			gen := simulator.NewGenerator(simulator.DefaultTilt, seed)
			if shift != 0 {
				for _, id := range sensors {
					gen.Shift(id, shift)
				}
			}
			sim := simulator.New(simulator.Config{
				Topic:    a.cfg.MQTT.TopicPrefix + ingestion.KindAngle + "/" + gateway,
				Sensors:  sensors,
				Interval: interval,
			}, gen, broker.NewPublisher(client), a.log)
			return sim.Run(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&gateway, "gateway", "GW010001", "gateway topic segment")
	f.IntSliceVar(&sensors, "sensors", []int{1, 2, 3}, "sensor ids to simulate")
	f.DurationVar(&interval, "interval", 10*time.Second, "publish interval")
	f.Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	f.Float64Var(&shift, "shift", 0, "constant X displacement added to every sensor, in degrees")
	return cmd
}
