package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/directdev/directclient/internal/config"
	"github.com/directdev/directclient/internal/display"
	"github.com/directdev/directclient/internal/engine"
	"github.com/directdev/directclient/internal/format"
)

func watchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously poll eth_blockNumber through the accelerator",
		Long: `Continuously poll eth_blockNumber through the accelerator engine, showing
whether each tick was served synchronously from the block-height cache or
required a round trip.

Example:
  directctl watch --interval 5s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if interval <= 0 {
				interval = 5 * time.Second
			}
			return runWatch(cfg, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default 5s)")
	return cmd
}

func runWatch(cfg *config.Config, interval time.Duration) error {
	eng := engine.New(cfg, newCLILogger(cfg.LogLevel))
	defer func() {
		_ = eng.Destroy(context.Background())
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	firstDisplay := true
	poll := func() {
		callCtx, cancelCall := context.WithTimeout(ctx, interval)
		defer cancelCall()

		req, _ := buildRequest(1, "eth_blockNumber", "")
		resp, err := eng.Fetch(callCtx, req)

		if !firstDisplay {
			display.Clear(os.Stdout)
		}
		firstDisplay = false

		stats := eng.Stats()
		fmt.Printf("Watching via %s (interval: %s, Ctrl+C to exit)\n\n", cfg.AggregatorEndpoint(), interval)
		if err != nil {
			fmt.Println(format.Red(fmt.Sprintf("eth_blockNumber: %v", err)))
		} else {
			fmt.Printf("%s %s\n", format.Bold("Block height:"), format.Green(formatResponse(resp)))
		}
		fmt.Printf("%s %v   %s %d   %s %d\n\n",
			format.Dim("aggregator eligible:"), stats.AggregatorEligible,
			format.Dim("cache hits:"), stats.CacheHits,
			format.Dim("prefetch hits:"), stats.PrefetchHits)

		renderProviderHealth(callCtx, eng)
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nExiting...")
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			poll()
		}
	}
}

// renderProviderHealth probes every configured provider node directly
// (bypassing the aggregator and the cache) and renders a latency/lag table,
// the watch dashboard's analogue of the teacher's per-provider monitor
// view, now fed from the accelerator's own provider pool instead of a
// dedicated polling client.
func renderProviderHealth(ctx context.Context, eng *engine.Engine) {
	results := eng.ProbeProviders(ctx)

	var highest uint64
	parsed := make([]uint64, len(results))
	for i, r := range results {
		if r.Err != nil {
			continue
		}
		v, err := strconv.ParseUint(trimHexPrefix(r.BlockHeight), 16, 64)
		if err != nil {
			continue
		}
		parsed[i] = v
		if v > highest {
			highest = v
		}
	}

	headerFmt := color.New(color.FgCyan, color.Underline).SprintfFunc()
	tbl := table.New("Provider", "Block Height", "Latency", "Lag")
	tbl.WithHeaderFormatter(headerFmt)
	for i, r := range results {
		if r.Err != nil {
			tbl.AddRow(r.ProviderID, format.Red("ERROR"), "—", "—")
			continue
		}
		lag := highest - parsed[i]
		tbl.AddRow(r.ProviderID, r.BlockHeight, format.ColorLatency(r.Latency.Milliseconds()), format.ColorLag(lag))
	}
	tbl.Print()
	fmt.Println()
}

func trimHexPrefix(s string) string {
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
