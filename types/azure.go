package types

// Role definition GUIDs for the built-in Azure roles the tool cares about.
// These are fixed across tenants.
const (
	RoleADTDataReader              = "d57506d4-4c8d-48b1-8587-93c323f6a5a3"
	RoleADTDataOwner               = "bcd981a7-7f74-457b-83e1-cceb9e632ffe"
	RoleReader                     = "acdd72a7-3385-48ef-bd42-f606fba81ae7"
	RoleStorageBlobDataOwner       = "b7e6dc6d-f1e8-4753-8033-0f276bb0955b"
	RoleStorageBlobDataContributor = "ba92f5b4-2d11-453d-a403-e96b0029c9fe"
)

// ARM resource type identifiers used for generic resource listing.
const (
	ResourceTypeDigitalTwinInstance  = "Microsoft.DigitalTwins/digitalTwinsInstances"
	ResourceTypeStorageAccount       = "Microsoft.Storage/storageAccounts"
	ResourceTypeStorageBlobContainer = "Microsoft.Storage/storageAccounts/blobServices/containers"
)

// Subscription is one ARM subscription visible to the signed-in principal.
type Subscription struct {
	SubscriptionID string `json:"subscriptionId"`
	TenantID       string `json:"tenantId"`
	DisplayName    string `json:"displayName"`
}

// Resource is a generic ARM resource as returned by provider listings.
type Resource struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Location   string             `json:"location,omitempty"`
	Properties ResourceProperties `json:"properties,omitempty"`
}

// ResourceProperties carries the property subset the adapters read.
type ResourceProperties struct {
	HostName string `json:"hostName,omitempty"`
}

// ADTInstance describes a digital twins instance the principal can read.
type ADTInstance struct {
	Name       string `json:"name"`
	HostName   string `json:"hostName"`
	ResourceID string `json:"resourceId"`
	Location   string `json:"location"`
}

// RoleAssignment is one ARM role assignment at some scope.
type RoleAssignment struct {
	ID         string                   `json:"id"`
	Name       string                   `json:"name"`
	Properties RoleAssignmentProperties `json:"properties"`
}

// RoleAssignmentProperties is the property bag of a role assignment.
type RoleAssignmentProperties struct {
	RoleDefinitionID string `json:"roleDefinitionId"`
	PrincipalID      string `json:"principalId"`
	Scope            string `json:"scope,omitempty"`
}

// RoleDefinitionGUID extracts the bare GUID from the full
// /subscriptions/.../roleDefinitions/{guid} path.
func (p RoleAssignmentProperties) RoleDefinitionGUID() string {
	id := p.RoleDefinitionID
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '/' {
			return id[i+1:]
		}
	}
	return id
}

// RoleGroup is a set of role definition GUIDs split into roles that must
// all be present and groups of alternatives where any one suffices.
type RoleGroup struct {
	Enforced         []string   `json:"enforced"`
	Interchangeables [][]string `json:"interchangeables"`
}

// MissingRoleAssignments is the outcome of diffing a RoleGroup against the
// principal's assigned roles at a resource scope. Nil Enforced and
// Interchangeables mean the resource was not found in any accessible
// subscription, which is distinct from empty slices (fully compliant).
type MissingRoleAssignments struct {
	ResourceID       string     `json:"resourceId,omitempty"`
	Enforced         []string   `json:"enforced"`
	Interchangeables [][]string `json:"interchangeables"`
}

// NotFound reports whether the diff target resource was absent.
func (m MissingRoleAssignments) NotFound() bool {
	return m.Enforced == nil && m.Interchangeables == nil
}

// Compliant reports whether nothing is missing for a resource that exists.
func (m MissingRoleAssignments) Compliant() bool {
	return !m.NotFound() && len(m.Enforced) == 0 && len(m.Interchangeables) == 0
}

// RoleGroup returns the missing roles as a RoleGroup suitable for
// passing back to the assignment call.
func (m MissingRoleAssignments) RoleGroup() RoleGroup {
	return RoleGroup{Enforced: m.Enforced, Interchangeables: m.Interchangeables}
}

// RequiredContainerRoles is the access required on a storage container
// before scene files can be read and written.
func RequiredContainerRoles() RoleGroup {
	return RoleGroup{
		Enforced: []string{RoleReader},
		Interchangeables: [][]string{
			{RoleStorageBlobDataOwner, RoleStorageBlobDataContributor},
		},
	}
}

// RequiredADTInstanceRoles is the access required to read twin data from
// an ADT instance.
func RequiredADTInstanceRoles() RoleGroup {
	return RoleGroup{
		Interchangeables: [][]string{
			{RoleADTDataReader, RoleADTDataOwner},
		},
	}
}
