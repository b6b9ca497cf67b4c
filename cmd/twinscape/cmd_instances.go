package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/twinscape/twinscape/cache"
	"github.com/twinscape/twinscape/storage"
	"github.com/twinscape/twinscape/types"
)

var (
	instancesOutput  string
	instancesRefresh bool
)

// instancesCmd represents the instances command
var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "Discover the digital twin instances you can read",
	Long: `Discover the tenant's Azure Digital Twins instances the signed-in
principal holds a Data Reader or Data Owner role on.

Results are persisted locally so repeated runs within the freshness
window skip the ARM round trips.`,
	Example: `  twinscape instances                 # Use the local inventory when fresh
  twinscape instances --refresh       # Force re-discovery
  twinscape instances -o json         # JSON output`,
	RunE: runInstances,
}

func init() {
	rootCmd.AddCommand(instancesCmd)

	instancesCmd.Flags().StringVarP(&instancesOutput, "output", "o", "table", "Output format: table, json")
	instancesCmd.Flags().BoolVar(&instancesRefresh, "refresh", false, "Ignore the local inventory and re-discover")
}

func runInstances(cmd *cobra.Command, args []string) error {
	adapter, cfg, err := buildAdapter()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if err := os.MkdirAll(cfg.StorageDir, 0750); err != nil {
		return fmt.Errorf("failed to create storage dir: %w", err)
	}
	store, err := storage.NewInventoryStore(cfg.StorageDir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if !instancesRefresh {
		if instances, ok, err := store.ListInstances(cfg.TenantID, cache.InstanceMaxAge); err == nil && ok {
			return printInstances(instances, instancesOutput)
		}
	}

	res := adapter.GetADTInstances(ctx)
	if err := reportErrors(res.ErrorInfo()); err != nil {
		return err
	}
	if res.HasNoData() {
		return fmt.Errorf("instance discovery produced no data")
	}

	if _, err := store.SaveInstances(cfg.TenantID, res.Data()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not persist inventory: %v\n", err)
	}
	return printInstances(res.Data(), instancesOutput)
}

func printInstances(instances []types.ADTInstance, format string) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(instances)
	}
	if len(instances) == 0 {
		fmt.Println("no readable instances found")
		return nil
	}
	fmt.Printf("%-30s %-50s %s\n", "NAME", "HOST", "LOCATION")
	for _, inst := range instances {
		fmt.Printf("%-30s %-50s %s\n", inst.Name, inst.HostName, inst.Location)
	}
	return nil
}
