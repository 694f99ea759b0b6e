package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/directdev/directclient/internal/engine"
	"github.com/directdev/directclient/internal/format"
)

func callCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <method> [params-json]",
		Short: "Issue a single JSON-RPC call through the accelerator",
		Long: `Issue a single JSON-RPC call through the accelerator engine, serving it
from cache, joining an in-flight duplicate, or batching it for dispatch.

Examples:
  directctl call eth_blockNumber
  directctl call eth_getBalance '["0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045","latest"]'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			method := args[0]
			params := ""
			if len(args) == 2 {
				params = args[1]
			}
			req, err := buildRequest(1, method, params)
			if err != nil {
				return err
			}

			eng := engine.New(cfg, newCLILogger(cfg.LogLevel))
			defer func() {
				_ = eng.Destroy(context.Background())
			}()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			resp, err := eng.Fetch(ctx, req)
			if err != nil {
				return fmt.Errorf("fetch: %w", err)
			}

			if resp.Error != nil {
				fmt.Println(format.Red(formatResponse(resp)))
				return nil
			}
			fmt.Println(formatResponse(resp))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Overall call deadline")
	return cmd
}
