package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"chairgate/pkg/api"
	"chairgate/pkg/config"
	"chairgate/pkg/control"
	"chairgate/pkg/engine"
	"chairgate/pkg/ingest"
	"chairgate/pkg/output"
)

func newServeCmd(v *viper.Viper, load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the stream server, datagram listener and status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, log.Default())
		},
	}
	cmd.Flags().Int("tcp-port", config.DefaultTCPPort, "Stream server port")
	cmd.Flags().Int("udp-port", config.DefaultUDPPort, "Datagram listener port")
	cmd.Flags().Int("api-port", config.DefaultAPIPort, "Status API port")
	cmd.Flags().String("framing", "read", "Stream framing (read or newline)")
	cmd.Flags().String("forward-url", config.DefaultForwardURL, "Collection endpoint for datagram records")
	cmd.Flags().String("redis-addr", "", "Redis address for runtime config and publishing")
	bindFlag(v, cmd, "stream.bind-port", "tcp-port")
	bindFlag(v, cmd, "datagram.bind-port", "udp-port")
	bindFlag(v, cmd, "api.bind-port", "api-port")
	bindFlag(v, cmd, "stream.framing", "framing")
	bindFlag(v, cmd, "forward.url", "forward-url")
	bindFlag(v, cmd, "redis.address", "redis-addr")
	return cmd
}

// gateway wires every enabled component for one serve run.
type gateway struct {
	logger    *log.Logger
	gate      *engine.Gate
	forwarder *output.Forwarder
	stream    *ingest.StreamServer
	datagram  *ingest.DatagramListener
	api       *api.Server
	redis     *redis.Client
	watcher   *control.Watcher
}

func newGateway(cfg *config.Config, logger *log.Logger) *gateway {
	g := &gateway{
		logger: logger,
		gate:   engine.NewGate(nil),
	}

	if cfg.Redis.Address != "" {
		g.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var sink output.Sink = output.NewConsoleSink(os.Stdout)
	if g.redis != nil && cfg.Redis.PublishChannel != "" {
		sink = output.NewFanOutSink(sink, output.NewRedisSink(g.redis, cfg.Redis.PublishChannel))
	}

	if cfg.Stream.Enabled {
		g.stream = ingest.NewStreamServer(ingest.StreamConfig{
			Addr:           cfg.StreamAddr(),
			ReadBufferSize: cfg.Stream.ReadBufferSize,
			Framing:        ingest.Framing(cfg.Stream.Framing),
			MaxConnections: cfg.Stream.MaxConnections,
			Sink:           sink,
			Gate:           g.gate,
			Logger:         logger,
		})
	}

	if cfg.Datagram.Enabled {
		g.forwarder = output.NewForwarder(output.ForwarderConfig{
			URL:       cfg.Forward.URL,
			Headers:   cfg.Forward.Headers,
			Timeout:   cfg.Forward.Timeout,
			NameField: cfg.Forward.NameField,
		})
		g.datagram = ingest.NewDatagramListener(ingest.DatagramConfig{
			Addr:           cfg.DatagramAddr(),
			ReadBufferSize: cfg.Datagram.ReadBufferSize,
			Forwarder:      g.forwarder,
			Gate:           g.gate,
			Logger:         logger,
		})
	}

	if cfg.API.Enabled {
		var stats api.StatsSource
		if g.stream != nil {
			stats.Stream = g.stream.Stats()
		}
		if g.datagram != nil {
			stats.Datagram = g.datagram.Stats()
		}
		g.api = api.NewServer(cfg.APIAddr(), stats)
	}

	if g.redis != nil {
		wcfg := control.WatcherConfig{
			ConfigKey:     cfg.Redis.ConfigKey,
			UpdateChannel: cfg.Redis.UpdateChannel,
			Gate:          g.gate,
			Logger:        logger,
		}
		if g.forwarder != nil {
			wcfg.Forwarder = g.forwarder
		}
		g.watcher = control.NewWatcher(g.redis, wcfg)
	}
	return g
}

// listen binds every socket so that a taken port fails the run before
// anything is served.
func (g *gateway) listen() error {
	if g.stream != nil {
		if err := g.stream.Listen(); err != nil {
			return err
		}
	}
	if g.datagram != nil {
		if err := g.datagram.Listen(); err != nil {
			return err
		}
	}
	if g.api != nil {
		if err := g.api.Listen(); err != nil {
			return fmt.Errorf("api listen on %s: %w", g.api.Addr(), err)
		}
	}
	return nil
}

func (g *gateway) serve(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	if g.stream != nil {
		group.Go(func() error { return g.stream.Serve(ctx) })
	}
	if g.datagram != nil {
		group.Go(func() error { return g.datagram.Serve(ctx) })
	}
	if g.api != nil {
		group.Go(func() error { return g.api.Serve(ctx) })
	}
	if g.watcher != nil {
		group.Go(func() error { return g.watcher.Run(ctx) })
	}
	return group.Wait()
}

func (g *gateway) close() {
	if g.redis != nil {
		_ = g.redis.Close()
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	logger.Println("Initializing chairgate...")

	g := newGateway(cfg, logger)
	defer g.close()

	if err := g.listen(); err != nil {
		return err
	}
	logger.Println("chairgate running. Press Ctrl+C to stop.")

	if err := g.serve(ctx); err != nil {
		return err
	}
	logger.Println("chairgate stopped")
	return nil
}
