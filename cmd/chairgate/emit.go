package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chairgate/pkg/config"
	"chairgate/pkg/emitter"
)

func newEmitCmd(v *viper.Viper, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Send random chair records to a running gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runEmitter(ctx, cfg)
		},
	}
	cmd.Flags().String("transport", "udp", "Transport to send on (tcp or udp)")
	cmd.Flags().String("target", "", "host:port to send to (defaults to the configured listener)")
	cmd.Flags().Duration("interval", config.DefaultEmitInterval, "Delay between records")
	cmd.Flags().Int("count", 0, "Stop after this many records (0 runs until interrupted)")
	bindFlag(v, cmd, "emitter.transport", "transport")
	bindFlag(v, cmd, "emitter.target", "target")
	bindFlag(v, cmd, "emitter.interval", "interval")
	bindFlag(v, cmd, "emitter.count", "count")
	return cmd
}

func runEmitter(ctx context.Context, cfg *config.Config) error {
	target := cfg.Emitter.Target
	if target == "" {
		if cfg.Emitter.Transport == "tcp" {
			target = cfg.StreamAddr()
		} else {
			target = cfg.DatagramAddr()
		}
	}

	e, err := emitter.New(emitter.Config{
		Transport: cfg.Emitter.Transport,
		Target:    target,
		Interval:  cfg.Emitter.Interval,
		Count:     cfg.Emitter.Count,
		NameField: cfg.Emitter.NameField,
		Newline:   cfg.Emitter.Transport == "tcp" && cfg.Stream.Framing == "newline",
	})
	if err != nil {
		return err
	}
	return e.Run(ctx)
}
