package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/directdev/directclient/internal/engine"
	"github.com/directdev/directclient/internal/format"
	"github.com/directdev/directclient/internal/rpctypes"
)

// batchFileEntry is one request in a batch input file.
type batchFileEntry struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func batchCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "batch <file.json>",
		Short: "Fetch many JSON-RPC requests from a file through one batch window",
		Long: `Read a JSON array of {method, params} objects from file and resolve them
all through the accelerator engine, exercising request deduplication and the
batch window scheduler the way concurrent fetch() calls would.

Example file:
  [
    {"method": "eth_blockNumber"},
    {"method": "eth_chainId"}
  ]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			entries, err := readBatchFile(args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("batch file %s contains no requests", args[0])
			}

			reqs := make([]rpctypes.Request, len(entries))
			for i, e := range entries {
				params := "[]"
				if len(e.Params) > 0 {
					params = string(e.Params)
				}
				req, err := buildRequest(i+1, e.Method, params)
				if err != nil {
					return fmt.Errorf("entry %d: %w", i, err)
				}
				reqs[i] = req
			}

			eng := engine.New(cfg, newCLILogger(cfg.LogLevel))
			defer func() {
				_ = eng.Destroy(context.Background())
			}()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			resps, errs := eng.FetchBatch(ctx, reqs)

			headerFmt := color.New(color.FgCyan, color.Underline).SprintfFunc()
			tbl := table.New("#", "Method", "Result")
			tbl.WithHeaderFormatter(headerFmt)
			for i, e := range entries {
				result := formatResponse(resps[i])
				if errs[i] != nil {
					result = format.Red(errs[i].Error())
				}
				tbl.AddRow(i+1, e.Method, result)
			}
			tbl.Print()
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Overall batch deadline")
	return cmd
}

func readBatchFile(path string) ([]batchFileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var entries []batchFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return entries, nil
}
