package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "twinscape",
		Short: "Scene adapter tooling for Azure Digital Twins",
		Long: `Twinscape - Scene adapter tooling for Azure Digital Twins

Twinscape talks to the Azure surfaces behind a 3D scene tool: the
Digital Twins data plane, Azure Resource Manager, Azure Data Explorer
and Blob Storage. Discover instances, inspect twins and models, query
historized telemetry, and check or repair the storage-container role
assignments scene files need.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`Twinscape {{.Version}}
`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "twinscape.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
