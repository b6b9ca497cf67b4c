package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/twinscape/twinscape/storage"
	"github.com/twinscape/twinscape/types"
)

var (
	rolesContainerURL string
	rolesFix          bool
)

// rolesCmd represents the roles command
var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Check storage container role assignments",
	Long: `Check whether the signed-in identity holds the role assignments the
scene storage container requires, and optionally create the missing
ones. Reader is always required; write access is satisfied by either
Storage Blob Data Owner or Storage Blob Data Contributor.`,
	Example: `  twinscape roles                       # Check the configured container
  twinscape roles --fix                 # Create any missing assignments
  twinscape roles --container https://acct.blob.core.windows.net/scenes`,
	RunE: runRoles,
}

func init() {
	rootCmd.AddCommand(rolesCmd)

	rolesCmd.Flags().StringVar(&rolesContainerURL, "container", "", "Container URL to check (defaults to the configured one)")
	rolesCmd.Flags().BoolVar(&rolesFix, "fix", false, "Assign the missing roles")
}

func runRoles(cmd *cobra.Command, args []string) error {
	adapter, cfg, err := buildAdapter()
	if err != nil {
		return err
	}
	ctx := context.Background()

	missingRes := adapter.GetMissingStorageContainerAccessRoles(ctx, rolesContainerURL)
	if err := reportErrors(missingRes.ErrorInfo()); err != nil {
		return err
	}
	if missingRes.HasNoData() {
		return fmt.Errorf("could not determine container role assignments")
	}

	missing := missingRes.Data()
	if missing.NotFound() {
		return fmt.Errorf("storage container not found in any accessible subscription")
	}
	if missing.Compliant() {
		fmt.Println("All required role assignments are present")
		return nil
	}

	printMissingRoles(missing)

	if !rolesFix {
		fmt.Println("\nRun with --fix to create the missing assignments")
		return nil
	}

	audit, err := storage.OpenAuditLog(cfg.StorageDir)
	if err != nil {
		return err
	}
	defer func() { _ = audit.Close() }()

	assignedRes := adapter.AddMissingRolesToStorageContainer(ctx, missing.ResourceID, missing.RoleGroup())
	assigned := assignedRes.Data()
	for _, ra := range assigned {
		_ = audit.Record(storage.AuditRoleAssigned, missing.ResourceID, ra)
	}
	if info := assignedRes.ErrorInfo(); info != nil {
		for _, rec := range info.Errors {
			_ = audit.RecordError(storage.AuditAssignFailed, missing.ResourceID, rec.Params, rec)
		}
	}
	if err := reportErrors(assignedRes.ErrorInfo()); err != nil {
		return err
	}
	fmt.Printf("Created %d role assignment(s)\n", len(assigned))
	return nil
}

func printMissingRoles(missing types.MissingRoleAssignments) {
	fmt.Printf("Missing role assignments on %s\n\n", missing.ResourceID)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "KIND\tROLE DEFINITION")
	for _, id := range missing.Enforced {
		fmt.Fprintf(w, "required\t%s\n", roleName(id))
	}
	for _, group := range missing.Interchangeables {
		for i, id := range group {
			kind := "either"
			if i > 0 {
				kind = "or"
			}
			fmt.Fprintf(w, "%s\t%s\n", kind, roleName(id))
		}
	}
}

// roleName maps the well-known role definition GUIDs to readable names.
func roleName(id string) string {
	switch id {
	case types.RoleReader:
		return "Reader"
	case types.RoleStorageBlobDataOwner:
		return "Storage Blob Data Owner"
	case types.RoleStorageBlobDataContributor:
		return "Storage Blob Data Contributor"
	case types.RoleADTDataReader:
		return "Azure Digital Twins Data Reader"
	case types.RoleADTDataOwner:
		return "Azure Digital Twins Data Owner"
	default:
		return id
	}
}
