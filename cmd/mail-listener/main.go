package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cartpilot/internal/config"
	"cartpilot/internal/connectors"
	"cartpilot/internal/listener"
	"cartpilot/internal/observability"
	"cartpilot/internal/pipeline"
	"cartpilot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := observability.NewLogger(cfg.LogLevel)
	must(err)
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, _, err := pipeline.FromConfig(ctx, cfg, db, logger)
	must(err)

	conn, err := listener.NewConnector(ctx, cfg)
	must(err)
	fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, logger)
	processor := pipeline.NewProcessingService(db, cfg, svc, logger)

	must(listener.NewService(cfg, fetch, processor, logger).Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
