package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var modelsExpand bool

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models [model-id]",
	Short: "List models or inspect one model",
	Example: `  twinscape models                             # List all models
  twinscape models dtmi:example:Room;1         # One model
  twinscape models dtmi:example:Room;1 --expand  # Model plus inherited chain`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().BoolVar(&modelsExpand, "expand", false, "Include every model the target extends")
}

func runModels(cmd *cobra.Command, args []string) error {
	adapter, _, err := buildAdapter()
	if err != nil {
		return err
	}
	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if len(args) == 0 {
		res := adapter.GetAllModels(ctx)
		if err := reportErrors(res.ErrorInfo()); err != nil {
			return err
		}
		if res.HasNoData() {
			return fmt.Errorf("model listing produced no data")
		}
		for _, m := range res.Data() {
			fmt.Printf("%s\n", m.ID)
		}
		return nil
	}

	if modelsExpand {
		res := adapter.GetExpandedModel(ctx, args[0])
		if err := reportErrors(res.ErrorInfo()); err != nil {
			return err
		}
		return enc.Encode(res.Data())
	}

	res := adapter.GetModel(ctx, args[0])
	if err := reportErrors(res.ErrorInfo()); err != nil {
		return err
	}
	return enc.Encode(res.Data())
}
