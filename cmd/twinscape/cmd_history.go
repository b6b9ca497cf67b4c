package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyKQL   string
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history [twin-id]",
	Short: "Query historized telemetry from Azure Data Explorer",
	Long: `Query the ADX data-history table connected to the configured ADT
instance. The cluster, database and table are resolved once through ARM
and memoized for the process lifetime.`,
	Example: `  twinscape history room-1                 # Latest values for one twin
  twinscape history room-1 --limit 500     # More rows
  twinscape history --kql "MyTable | take 10"  # Raw KQL`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 100, "Maximum rows to return")
	historyCmd.Flags().StringVar(&historyKQL, "kql", "", "Raw KQL query to run instead of a twin lookup")
}

func runHistory(cmd *cobra.Command, args []string) error {
	adapter, _, err := buildAdapter()
	if err != nil {
		return err
	}
	ctx := context.Background()

	connRes := adapter.GetConnectionInformation(ctx)
	if err := reportErrors(connRes.ErrorInfo()); err != nil {
		return err
	}
	conn := connRes.Data()
	if !conn.Complete() {
		return fmt.Errorf("no time series database connection resolved for the configured instance")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if historyKQL != "" {
		res := adapter.Query(ctx, conn, historyKQL)
		if err := reportErrors(res.ErrorInfo()); err != nil {
			return err
		}
		return enc.Encode(res.Data())
	}

	if len(args) != 1 {
		return fmt.Errorf("provide a twin id or --kql")
	}
	res := adapter.QueryHistory(ctx, conn, args[0], historyLimit)
	if err := reportErrors(res.ErrorInfo()); err != nil {
		return err
	}
	return enc.Encode(res.Data())
}
