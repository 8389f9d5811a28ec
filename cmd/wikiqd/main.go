// Command wikiqd runs the SemanticSearch HTTP server: it loads the
// engine's configuration, wires every retrieval stage together, and
// serves queries until terminated.
//
// Usage:
//
//	wikiqd serve --config wikiq.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/veyron-labs/wikiq/internal/config"
	"github.com/veyron-labs/wikiq/internal/engine"
	"github.com/veyron-labs/wikiq/internal/logger"
	"github.com/veyron-labs/wikiq/internal/observability"
	"github.com/veyron-labs/wikiq/internal/server"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the search server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file and exit."`

	Config string `short:"c" help:"Path to config file (YAML)." type:"path"`
}

// ValidateCmd loads and validates a config file without starting anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if err := config.LoadEnvFiles(); err != nil {
		return fmt.Errorf("loading .env files: %w", err)
	}
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Println("config is valid")
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Addr string `help:"Override the configured listen address." placeholder:"HOST:PORT"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	if err := config.LoadEnvFiles(); err != nil {
		return fmt.Errorf("loading .env files: %w", err)
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	level, err := logger.ParseLevel(cfg.Observability.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	log := logger.Init(level, os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if _, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled:      cfg.Observability.TracingEnabled,
		ExporterType: cfg.Observability.TracingType,
		EndpointURL:  cfg.Observability.OTLPEndpoint,
		SamplingRate: cfg.Observability.SamplingRate,
		ServiceName:  "wikiqd",
	}); err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}

	metrics, err := observability.NewMetrics(&observability.MetricsConfig{
		Enabled: cfg.Observability.MetricsEnabled,
	})
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	eng, err := engine.Build(ctx, cfg, metrics)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer eng.Close()

	if cfg.PageStore.DSN == "" {
		log.Warn("page_store.dsn not set: structural search and context expansion are disabled")
	}

	srv := server.New(server.Config{Addr: cfg.Server.Addr}, eng.Pipeline, metrics)
	log.Info("starting server", "addr", cfg.Server.Addr)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("wikiqd"),
		kong.Description("SemanticSearch server for the wiki knowledge base."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
