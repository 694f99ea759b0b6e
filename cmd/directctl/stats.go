package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/directdev/directclient/internal/engine"
	"github.com/directdev/directclient/internal/format"
)

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a snapshot of engine state: block height, back-off, telemetry",
		Long: `Construct a fresh engine (no requests issued) and print its starting
state, or pair with a prior call/batch in the same process if embedded —
useful as a quick config sanity check against the configured providers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			eng := engine.New(cfg, newCLILogger(cfg.LogLevel))
			stats := eng.Stats()

			fmt.Printf("%s %s\n", format.Bold("Session:"), stats.SessionID)
			fmt.Printf("%s %s\n", format.Bold("Aggregator:"), cfg.AggregatorEndpoint())
			fmt.Printf("%s %v\n", format.Bold("Aggregator eligible:"), boolColor(stats.AggregatorEligible))
			if stats.BlockHeight != "" {
				fmt.Printf("%s %s\n", format.Bold("Block height:"), stats.BlockHeight)
			} else {
				fmt.Printf("%s %s\n", format.Bold("Block height:"), format.Dim("unknown"))
			}
			fmt.Printf("%s %d\n", format.Bold("Pending batch size:"), stats.PendingBatchSize)
			fmt.Printf("%s cache=%d prefetch=%d inflight=%d\n\n",
				format.Bold("Telemetry buffered:"), stats.CacheHits, stats.PrefetchHits, stats.InflightHits)

			headerFmt := color.New(color.FgCyan, color.Underline).SprintfFunc()
			tbl := table.New("Provider", "URL", "Weight", "Eligible")
			tbl.WithHeaderFormatter(headerFmt)
			for _, p := range stats.Providers {
				tbl.AddRow(p.ProviderID, p.URL, p.Weighting, boolColor(p.Eligible))
			}
			tbl.Print()

			eligible := 0
			for _, p := range stats.Providers {
				if p.Eligible {
					eligible++
				}
			}
			if len(stats.Providers) > 0 {
				fmt.Printf("\n%s %s\n", format.Bold("Providers eligible:"), format.ColorSuccess(eligible, len(stats.Providers)))
			}
			return nil
		},
	}
	return cmd
}

func boolColor(ok bool) string {
	if ok {
		return format.Green("yes")
	}
	return format.Red("no")
}
