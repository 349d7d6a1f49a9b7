package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/suwandre/fundingarb/internal/scanner"
	"github.com/suwandre/fundingarb/internal/snapshot"
)

func scanCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle and print the ranked opportunities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := buildComponents(cfg)

			report, err := c.scanner.Scan(ctx)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), report)

			if !save || len(report.Opportunities) == 0 {
				return nil
			}

			sink, err := snapshot.Open(ctx, cfg.Sink)
			if err != nil {
				return err
			}
			defer sink.Close()

			snap := snapshot.New(report.Opportunities, report.Finished)
			if err := sink.Save(ctx, snap); err != nil {
				return err
			}
			log.Info().Str("snapshot", snap.ID.String()).Str("driver", cfg.Sink.Driver).Msg("snapshot saved")
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "save the result to the configured snapshot sink")
	return cmd
}

func printReport(out io.Writer, report *scanner.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tLONG\tSHORT\tDIFF\tINTERVAL\tCOST %\tBREAKEVEN\tDEPTH\tAPR %")
	for _, o := range report.Opportunities {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.6f\t%.1fh\t%.4f\t%.2f\t%.4f\t%.2f\n",
			o.Symbol, o.LongExchange, o.ShortExchange, o.RateDiff, o.IntervalHours,
			o.TotalCostPct, o.BreakevenSettlements, o.ExecutableDepth, o.APR)
	}
	w.Flush()

	fmt.Fprintf(out, "\n%d opportunities, %d drops, %s\n",
		len(report.Opportunities), len(report.Drops), report.Finished.Sub(report.Started).Round(time.Millisecond))
}
