package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/suwandre/fundingarb/internal/premium"
)

func predictCmd() *cobra.Command {
	var (
		exchangeName string
		symbol       string
		samples      int
		every        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Sample the premium index and predict the next funding rate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := buildComponents(cfg)
			if every <= 0 {
				every = cfg.Premium.SampleInterval
			}

			// Predict takes the last sample itself
			for i := 1; i < samples; i++ {
				if _, err := c.engine.Sample(ctx, exchangeName, symbol); err != nil {
					return err
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(every):
				}
			}

			pred, err := c.engine.Predict(ctx, exchangeName, symbol)
			if err != nil {
				return err
			}

			out := map[string]any{"prediction": pred}
			st, err := c.engine.Stability(exchangeName, symbol)
			switch {
			case err == nil:
				out["stability"] = st
			case errors.Is(err, premium.ErrInsufficientData):
				out["stability"] = err.Error()
			default:
				return err
			}

			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&exchangeName, "exchange", "binance", "exchange to sample")
	cmd.Flags().StringVar(&symbol, "symbol", "BTC/USDT", "symbol in BASE/QUOTE form")
	cmd.Flags().IntVar(&samples, "samples", 1, "premium samples to take before predicting")
	cmd.Flags().DurationVar(&every, "every", 0, "pause between samples (defaults to premium.sample_interval)")
	return cmd
}
