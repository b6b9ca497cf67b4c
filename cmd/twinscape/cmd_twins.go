package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	twinsQuery  string
	twinsSearch string
)

// twinsCmd represents the twins command
var twinsCmd = &cobra.Command{
	Use:   "twins [twin-id]",
	Short: "Look up, query or search digital twins",
	Example: `  twinscape twins room-1                                  # Fetch one twin
  twinscape twins --query "SELECT * FROM digitaltwins"    # Raw ADT query
  twinscape twins --search room                           # Search by id fragment`,
	RunE: runTwins,
}

func init() {
	rootCmd.AddCommand(twinsCmd)

	twinsCmd.Flags().StringVarP(&twinsQuery, "query", "q", "", "ADT query to run")
	twinsCmd.Flags().StringVarP(&twinsSearch, "search", "s", "", "Search term matched against twin ids")
}

func runTwins(cmd *cobra.Command, args []string) error {
	adapter, _, err := buildAdapter()
	if err != nil {
		return err
	}
	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	switch {
	case len(args) == 1:
		res := adapter.GetTwin(ctx, args[0])
		if err := reportErrors(res.ErrorInfo()); err != nil {
			return err
		}
		return enc.Encode(res.Data())
	case twinsQuery != "":
		res := adapter.QueryTwins(ctx, twinsQuery, "")
		if err := reportErrors(res.ErrorInfo()); err != nil {
			return err
		}
		return enc.Encode(res.Data().Twins)
	case twinsSearch != "":
		res := adapter.SearchTwins(ctx, twinsSearch, "")
		if err := reportErrors(res.ErrorInfo()); err != nil {
			return err
		}
		return enc.Encode(res.Data().Twins)
	}
	return fmt.Errorf("provide a twin id, --query or --search")
}
