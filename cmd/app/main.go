package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"receiving-engine/internal/adapters/cli"
	"receiving-engine/internal/app"
	"receiving-engine/internal/config"
	"receiving-engine/internal/core"
	"receiving-engine/internal/db"
	"receiving-engine/internal/logger"
	"receiving-engine/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Environment,
		ServiceName: "receiving-engine",
		Version:     cfg.Version,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to connect to database")
	}
	defer pool.Close()

	store := postgres.New(pool)
	receiving := core.NewReceivingService(store, postgres.NewComparator(pool), cfg.Receiving, log)
	svc := app.NewAppService(receiving, log)

	if err := cli.Run(ctx, svc, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates rejected input (2) from retryable conflicts (3) and other failures (1).
func exitCode(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrMissingConversionFactor),
		errors.Is(err, core.ErrPoBalanceExceeded),
		errors.Is(err, core.ErrForbidden):
		return 2
	case errors.Is(err, core.ErrPersistenceConflict):
		return 3
	default:
		return 1
	}
}
