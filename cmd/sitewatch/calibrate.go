package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gssiot/sitewatch/internal/services/operator"
)

// operatorFlags are shared by the commands that talk to a running service.
type operatorFlags struct {
	addr    string
	doors   []int
	timeout time.Duration
}

func (o *operatorFlags) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.addr, "addr", "", "operator service address (default: grpc.addr)")
	f.IntSliceVar(&o.doors, "doors", nil, "sensor ids (default: all registered sensors)")
	f.DurationVar(&o.timeout, "timeout", 10*time.Second, "request timeout")
}

func (o *operatorFlags) call(a *app, cmd *cobra.Command, fn func(context.Context, *operator.Client) (map[string]any, error)) error {
	addr := o.addr
	if addr == "" {
		addr = a.cfg.GRPC.Addr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	c, err := operator.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()
	resp, err := fn(ctx, c)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func calibrateCommand(a *app) *cobra.Command {
	var o operatorFlags
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Manage zero-offset calibration rounds of a running service",
	}
	o.register(cmd)

	var target int
	start := &cobra.Command{
		Use:   "start",
		Short: "Start collecting samples for a new offset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.call(a, cmd, func(ctx context.Context, c *operator.Client) (map[string]any, error) {
				return c.StartCalibration(ctx, o.doors, target)
			})
		},
	}
	start.Flags().IntVar(&target, "target", 5, "samples to average")

	var reset bool
	cancel := &cobra.Command{
		Use:   "cancel",
		Short: "Stop a collection round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.call(a, cmd, func(ctx context.Context, c *operator.Client) (map[string]any, error) {
				return c.CancelCalibration(ctx, o.doors, reset)
			})
		},
	}
	cancel.Flags().BoolVar(&reset, "reset-offset", false, "also discard the committed offset")

	list := &cobra.Command{
		Use:   "list",
		Short: "Show calibration records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.call(a, cmd, func(ctx context.Context, c *operator.Client) (map[string]any, error) {
				return c.ListCalibrations(ctx, o.doors)
			})
		},
	}

	cmd.AddCommand(start, cancel, list)
	return cmd
}

func saveStatusCommand(a *app) *cobra.Command {
	var o operatorFlags
	cmd := &cobra.Command{
		Use:       "save-status on|off",
		Short:     "Turn recording of readings on or off for sensors",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(o.doors) == 0 {
				return fmt.Errorf("--doors is required")
			}
			status := args[0] == "on"
			return o.call(a, cmd, func(ctx context.Context, c *operator.Client) (map[string]any, error) {
				return c.SetSaveStatus(ctx, o.doors, status)
			})
		},
	}
	o.register(cmd)
	return cmd
}
