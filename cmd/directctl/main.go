// Command directctl is a thin operator-facing CLI over the accelerator
// engine: one-shot calls, file-driven batches, a live watch dashboard, and
// an engine-state snapshot. It plays the role the teacher's cmd/monitor
// played for its RPC client — a cobra front door over a library the
// command itself does not implement.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/directdev/directclient/internal/config"
	"github.com/directdev/directclient/internal/format"
)

func main() {
	config.LoadEnv()

	root := &cobra.Command{
		Use:   "directctl",
		Short: "Operate the directclient RPC accelerator from the command line",
	}

	root.PersistentFlags().String("config", "config/directclient.yaml", "Config file path")
	root.PersistentFlags().String("log-level", "", "Override the config's log_level (debug|info|warn|error)")

	root.AddCommand(callCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(watchCmd())
	root.AddCommand(statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, format.Red(err.Error()))
		os.Exit(1)
	}
}

// loadConfig reads --config and applies a --log-level override, mirroring
// the teacher's "flag overrides config default" convention used throughout
// cmd/monitor.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.Root().PersistentFlags().GetString("config")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	} else if level, _ := cmd.Root().PersistentFlags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
