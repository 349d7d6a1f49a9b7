package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/suwandre/fundingarb/config"
	"github.com/suwandre/fundingarb/internal/logging"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "fundarb",
		Short:         "Cross-exchange perpetual funding rate arbitrage scanner",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to the YAML config file")

	root.AddCommand(serveCmd(), scanCmd(), predictCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("fundarb failed")
	}
}

// loadConfig loads the config and sets up logging from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Log); err != nil {
		return nil, err
	}
	log.Info().Str("path", configPath).Strs("exchanges", cfg.EnabledExchanges()).Msg("config loaded")
	return cfg, nil
}
