package scene

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/twinscape/twinscape/adapters/blob"
	"github.com/twinscape/twinscape/adapters/management"
	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/result"
	"github.com/twinscape/twinscape/sandbox"
	"github.com/twinscape/twinscape/types"
)

// DiffRoles computes which required roles the principal is missing. An
// enforced role is missing when absent from assigned; an interchangeable
// group is missing when none of its members are assigned. Empty slices
// mean fully compliant.
func DiffRoles(required types.RoleGroup, assigned []string) types.RoleGroup {
	has := func(role string) bool {
		for _, a := range assigned {
			if strings.EqualFold(a, role) {
				return true
			}
		}
		return false
	}

	missing := types.RoleGroup{
		Enforced:         []string{},
		Interchangeables: [][]string{},
	}
	for _, role := range required.Enforced {
		if !has(role) {
			missing.Enforced = append(missing.Enforced, role)
		}
	}
	for _, group := range required.Interchangeables {
		satisfied := false
		for _, role := range group {
			if has(role) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			missing.Interchangeables = append(missing.Interchangeables, group)
		}
	}
	return missing
}

// pickInterchangeable chooses the one role to assign from a group:
// Storage Blob Data Contributor when offered, else Reader, else the
// group's first entry.
func pickInterchangeable(group []string) (string, bool) {
	if len(group) == 0 {
		return "", false
	}
	for _, role := range group {
		if strings.EqualFold(role, types.RoleStorageBlobDataContributor) {
			return role, true
		}
	}
	for _, role := range group {
		if strings.EqualFold(role, types.RoleReader) {
			return role, true
		}
	}
	return group[0], true
}

// GetMissingStorageContainerAccessRoles locates the scene container in
// the principal's subscriptions and diffs the required container roles
// against the roles assigned at its scope. When the container cannot be
// found anywhere, the returned value has nil Enforced and
// Interchangeables: "not in your subscriptions" is a valid outcome,
// distinct from both compliance and failure.
//
// containerURL overrides the configured container for this call only;
// the adapter's configured container is never rewritten. A URL that
// fails to parse is logged and treated as no container, which ends in
// the not-found outcome.
func (a *Adapter) GetMissingStorageContainerAccessRoles(ctx context.Context, containerURL string) result.Result[types.MissingRoleAssignments] {
	accountName := a.accountName
	containerName := a.containerName
	if containerURL != "" {
		loc, err := blob.ParseContainerURL(containerURL)
		if err != nil {
			a.log.Error().Err(err).Str("url", containerURL).Msg("bad container url")
			accountName, containerName = "", ""
		} else {
			accountName, containerName = loc.AccountName, loc.ContainerName
		}
	}

	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceManagement, func(ctx context.Context, token string) (types.MissingRoleAssignments, error) {
		endpoint := fmt.Sprintf("Microsoft.Storage/storageAccounts/%s/blobServices/default/containers", accountName)
		listing := a.GetResources(ctx, management.GetResourcesParams{
			ResourceType:     types.ResourceTypeStorageBlobContainer,
			ProviderEndpoint: endpoint,
		})
		if listing.Failed() {
			return types.MissingRoleAssignments{}, fmt.Errorf("could not list storage containers for account %q", accountName)
		}

		container, ok := findContainer(listing.Data(), accountName, containerName)
		if !ok {
			return types.MissingRoleAssignments{}, nil
		}

		assignedResult := a.GetRoleAssignments(ctx, container.ID)
		if assignedResult.HasNoData() {
			return types.MissingRoleAssignments{}, fmt.Errorf("could not list role assignments at %s", container.ID)
		}
		assigned := make([]string, 0, len(assignedResult.Data()))
		for _, ra := range assignedResult.Data() {
			assigned = append(assigned, ra.Properties.RoleDefinitionGUID())
		}

		missing := DiffRoles(types.RequiredContainerRoles(), assigned)
		return types.MissingRoleAssignments{
			ResourceID:       container.ID,
			Enforced:         missing.Enforced,
			Interchangeables: missing.Interchangeables,
		}, nil
	})
}

// findContainer matches by the storage-account segment of the resource
// ID and the container name.
func findContainer(resources []types.Resource, accountName, containerName string) (types.Resource, bool) {
	for _, r := range resources {
		if accountSegment(r.ID) == accountName && r.Name == containerName {
			return r, true
		}
	}
	return types.Resource{}, false
}

func accountSegment(resourceID string) string {
	_, after, found := strings.Cut(resourceID, "/storageAccounts/")
	if !found {
		return ""
	}
	if i := strings.Index(after, "/"); i >= 0 {
		return after[:i]
	}
	return after
}

// AddMissingRolesToStorageContainer assigns the missing roles at the
// container's scope: every enforced role, plus exactly one from each
// interchangeable group. containerResourceID comes from a prior
// GetMissingStorageContainerAccessRoles result. Assignment calls run
// concurrently; a failed call is recorded as non-catastrophic and its
// assignment simply omitted, so the envelope reports success with the
// partial list.
func (a *Adapter) AddMissingRolesToStorageContainer(ctx context.Context, containerResourceID string, missing types.RoleGroup) result.Result[[]types.RoleAssignment] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceManagement, func(ctx context.Context, token string) ([]types.RoleAssignment, error) {
		if containerResourceID == "" {
			return nil, fmt.Errorf("container resource id is required")
		}

		roleIDs := make([]string, 0, len(missing.Enforced)+len(missing.Interchangeables))
		roleIDs = append(roleIDs, missing.Enforced...)
		for _, group := range missing.Interchangeables {
			if role, ok := pickInterchangeable(group); ok {
				roleIDs = append(roleIDs, role)
			}
		}

		// Index-aligned fan-out; outcomes[i] belongs to roleIDs[i].
		outcomes := make([]result.Result[types.RoleAssignment], len(roleIDs))
		g, gctx := errgroup.WithContext(ctx)
		for i, roleID := range roleIDs {
			g.Go(func() error {
				outcomes[i] = a.AssignRole(gctx, roleID, containerResourceID)
				return nil
			})
		}
		_ = g.Wait()

		assignments := make([]types.RoleAssignment, 0, len(roleIDs))
		for i, outcome := range outcomes {
			if outcome.HasNoData() {
				sb.PushError(result.ErrorRecord{
					Kind:    result.KindPartial,
					Message: fmt.Sprintf("failed to assign role %s", roleIDs[i]),
					Params:  map[string]string{"roleDefinitionId": roleIDs[i]},
				})
				continue
			}
			assignments = append(assignments, outcome.Data())
		}
		return assignments, nil
	})
}
