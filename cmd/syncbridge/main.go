// Command syncbridge runs the sync pipeline as a standalone service: the
// drain scheduler, heartbeat, controlroom logging, and the optional metrics
// endpoint. The producer and registrar surfaces are meant to be embedded in
// application code; this host only operates the broker-facing loops.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/attendify/syncbridge"
)

func main() {
	logger := syncbridge.NewSlogServiceLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	conf, err := syncbridge.ConfigFromEnv()
	if err != nil {
		logger.Error("loading configuration", err, nil)
		os.Exit(1)
	}

	svc, err := syncbridge.TryNewService(conf, logger, syncbridge.ServiceDependencies{})
	if err != nil {
		logger.Error("building service", err, nil)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := svc.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("service stopped", runErr, nil)
	}
	if err := svc.Close(); err != nil {
		logger.Error("closing service", err, nil)
	}
}
