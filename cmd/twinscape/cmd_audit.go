package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/twinscape/twinscape/config"
	"github.com/twinscape/twinscape/storage"
)

var auditSince time.Duration

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the role assignment audit trail",
	Long: `Print the audit trail of role assignments this tool has created or
failed to create, newest runs last.`,
	Example: `  twinscape audit              # Everything on record
  twinscape audit --since 24h  # Last day only`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only show entries newer than this (0 = all)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	cutoff := time.Time{}
	if auditSince > 0 {
		cutoff = time.Now().Add(-auditSince)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "TIME\tEVENT\tSCOPE\tERROR")

	return storage.ReplayAudit(cfg.StorageDir, cutoff, func(e storage.AuditEntry) error {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.RFC3339), e.Type, e.Scope, e.Error)
		return nil
	})
}
