package main

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/suwandre/fundingarb/api"
	"github.com/suwandre/fundingarb/internal/scheduler"
	"github.com/suwandre/fundingarb/internal/snapshot"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scan scheduler and the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// ── 1. Config + logger
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// ── 2. Exchange adapters, scanner, premium engine
	c := buildComponents(cfg)

	// ── 3. Snapshot sink
	sink, err := snapshot.Open(ctx, cfg.Sink)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Msg("error closing snapshot sink")
		}
	}()

	// ── 4. Scheduler
	sched := scheduler.NewScheduler(c.scanner, c.engine, sink, scheduler.Options{
		ScanInterval:   cfg.Scan.Interval,
		SampleInterval: cfg.Premium.SampleInterval,
		WatchSymbols:   cfg.Premium.WatchSymbols,
	})

	sched.Start(ctx)
	defer sched.Stop()

	// ── 5. Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "fundarb",
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
	})

	// ── 6. Routes
	api.SetupRoutes(app, sched, c.metrics)

	// ── 7. Graceful shutdown listener
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutdown signal received")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	// ── 8. Start server (blocking)
	log.Info().Str("port", cfg.App.Port).Msg("starting server")
	return app.Listen(":" + cfg.App.Port)
}
