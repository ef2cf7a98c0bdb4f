package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"chronotask/internal/cli"
	"chronotask/internal/config"
	"chronotask/internal/domain"
	"chronotask/internal/engine"
	"chronotask/internal/logging"
	"chronotask/internal/services"
	"chronotask/internal/validation"
)

func main() {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cfg, buildApp)
	if err := root.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// buildApp wires the store, engine and reporting service for one invocation.
func buildApp(ctx context.Context, cfg *config.Config) (*cli.App, func(), error) {
	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := NewStoreFactory(getEnvironment(cfg)).CreateStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics, err := engine.NewMetrics(registry)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	eng := engine.New(store,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithStoreTimeout(cfg.GetWriteTimeout()),
		engine.WithAllocator(domain.NewAllocator(cfg.Engine.PositionBase, cfg.Engine.PositionGap)),
		engine.WithTaskValidator(validation.NewTaskValidatorWithLimits(cfg.Validation.TaskNameMinLength, cfg.Validation.TaskNameMaxLength)),
	)
	reports := services.NewReportingService(store, logger)

	app := cli.NewApp(eng, reports, cfg,
		cli.WithGatherer(registry),
		cli.WithAppLogger(logger),
	)

	cleanup := func() {
		app.Close()
		if err := store.Close(); err != nil {
			logger.WithError(err).Warnw("close store")
		}
		_ = logger.Sync()
	}
	return app, cleanup, nil
}
