// Command phdemo runs a local ingestion sink and a client that captures into
// it, which is handy for watching batching, retries and session rotation in
// the logs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/phkit/pkg/client"
	"github.com/dmitrymomot/phkit/pkg/config"
	"github.com/dmitrymomot/phkit/pkg/ingest"
	"github.com/dmitrymomot/phkit/pkg/logger"
	"github.com/dmitrymomot/phkit/pkg/sessionprops"
)

type demoConfig struct {
	Ingest ingest.Config
	Client client.Config

	// HeartbeatInterval is how often the demo captures a synthetic event.
	HeartbeatInterval time.Duration `env:"PHDEMO_HEARTBEAT_INTERVAL" envDefault:"5s"`
	LogFormat         string        `env:"PHDEMO_LOG_FORMAT" envDefault:"text"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "phdemo:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg demoConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}
	if cfg.Client.APIKey == "" {
		cfg.Client.APIKey = "phc_demo"
	}

	log := logger.New(
		logger.WithFormat(logger.Format(cfg.LogFormat)),
		logger.WithDebug(cfg.Client.Debug),
		logger.WithAttr(slog.String("service", "phdemo")),
	)

	sink := ingest.SinkFunc(func(ctx context.Context, path string, events []map[string]any) error {
		for _, e := range events {
			name, _ := e["event"].(string)
			log.InfoContext(ctx, "ingested", slog.String("path", path), logger.Event(name))
		}
		return nil
	})
	router := ingest.Router(sink,
		ingest.WithLogger(log),
		ingest.WithFlags(map[string]any{"demo-flag": true, "checkout": "variant-b"}),
	)
	srv := ingest.NewServer(cfg.Ingest, router, log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return nil
		}
		cfg.Client.APIHost = localURL(srv.Addr())
		return capture(ctx, cfg, log)
	})

	return g.Wait()
}

func capture(ctx context.Context, cfg demoConfig, log *slog.Logger) error {
	c, err := client.New(cfg.Client,
		client.WithLogger(log),
		client.WithSource(func() sessionprops.Source {
			return sessionprops.SourceFromURL("https://demo.local/?utm_source=phdemo", "")
		}),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("failed to close client", logger.Error(err))
		}
	}()

	if err := c.Flags().Reload(ctx); err != nil {
		log.Warn("feature flags unavailable", logger.Error(err))
	}
	log.Info("client ready",
		logger.DistinctID(c.DistinctID()),
		logger.SessionID(c.SessionID()),
		slog.Any("flags", c.Flags().All()))

	if _, err := c.Capture("$pageview", map[string]any{"$current_url": "https://demo.local/"}); err != nil {
		return err
	}
	if err := c.Identify("demo-user", map[string]any{"plan": "free"}); err != nil {
		return err
	}

	ticker := time.NewTicker(max(cfg.HeartbeatInterval, time.Second))
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			c.Unload()
			return nil
		case <-ticker.C:
			if _, err := c.Capture("heartbeat", map[string]any{"n": n}); err != nil {
				return err
			}
		}
	}
}

// localURL turns a listen address like [::]:8010 into a dialable base URL.
func localURL(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return "http://127.0.0.1:" + strconv.Itoa(tcp.Port)
	}
	return "http://" + addr.String()
}
