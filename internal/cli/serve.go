package cli

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/frostime/sy-query-view/internal/server"
	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/events"
	"github.com/frostime/sy-query-view/pkg/observability"
	"github.com/frostime/sy-query-view/pkg/queryview"
)

// serveOpts holds the flags of the serve command. Empty values keep the
// config file settings.
type serveOpts struct {
	addr        string
	metrics     bool
	eventsRedis string
	origins     []string
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the host API",
		Long: `Serve the host API: render pipelines into embed points, publish host
lifecycle events over HTTP or a websocket, and expose Prometheus metrics.

With an events Redis address, events are exchanged with every queryview
process subscribed to the same channel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config, 127.0.0.1:8080)")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "expose /metrics")
	cmd.Flags().StringVar(&opts.eventsRedis, "events-redis", "", "Redis address for the cross-process event bridge")
	cmd.Flags().StringSliceVar(&opts.origins, "allow-origin", nil, "browser origin allowed to open the event stream (repeatable)")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts serveOpts) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.metrics {
		cfg.Server.Metrics = true
	}
	if opts.eventsRedis != "" {
		cfg.Events.RedisAddr = opts.eventsRedis
	}
	cfg.Server.AllowedOrigins = append(cfg.Server.AllowedOrigins, opts.origins...)

	b, err := c.openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	m := queryview.NewManager(b.Options(c.Logger))
	defer func() {
		if err := m.Close(context.WithoutCancel(ctx)); err != nil {
			c.Logger.Warn("flush on shutdown failed", "err", err)
		}
	}()
	bus := events.NewBus(c.Logger)
	defer m.Subscribe(bus)()

	srvCfg := server.Config{Manager: m, Bus: bus, AllowedOrigins: cfg.Server.AllowedOrigins, Logger: c.Logger}

	if cfg.Events.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Events.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrap(errors.ErrCodeNetwork, err, "connect event redis %s", cfg.Events.RedisAddr)
		}
		bridge := events.NewRedisBridge(client, cfg.Events.Channel, bus, c.Logger)
		srvCfg.Bridge = bridge
		go func() {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				c.Logger.Error("event bridge stopped", "err", err)
			}
		}()
		printInfo("Event bridge on %s", bridge.Channel())
	}

	if cfg.Server.Metrics {
		h, err := metricsHandler()
		if err != nil {
			return err
		}
		srvCfg.Metrics = h
	}

	printSuccess("Serving on http://%s", cfg.Server.Addr)
	printDetail("query: %s · cache: %s · state: %s", cfg.Query.Backend, cfg.Cache.Backend, cfg.State.Backend)
	return server.New(srvCfg).ListenAndServe(ctx, cfg.Server.Addr)
}

// metricsHandler routes the engine hooks to a fresh Prometheus registry
// and returns its HTTP handler.
func metricsHandler() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	p, err := observability.NewPrometheus(reg)
	if err != nil {
		return nil, err
	}
	p.Install()
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
