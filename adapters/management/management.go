// Package management wraps the Azure Resource Manager surface:
// subscription discovery, digital-twin instance discovery filtered by
// the principal's role assignments, generic resource listing, and role
// assignment creation.
package management

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/cache"
	"github.com/twinscape/twinscape/internal/restclient"
	"github.com/twinscape/twinscape/result"
	"github.com/twinscape/twinscape/sandbox"
	"github.com/twinscape/twinscape/telemetry"
	"github.com/twinscape/twinscape/types"
)

// API versions are fixed per call site and preserved exactly for wire
// compatibility.
const (
	subscriptionsAPIVersion   = "2020-01-01"
	adtInstancesAPIVersion    = "2020-12-01"
	roleAssignmentsAPIVersion = "2021-04-01-preview"
	storageAPIVersion         = "2021-04-01"
)

const defaultBaseURL = "https://management.azure.com"

// Adapter is the ARM service adapter.
type Adapter struct {
	tokens   auth.TokenProvider
	rest     *restclient.Client
	log      zerolog.Logger
	baseURL  string
	tenantID string
	objectID string

	instances *cache.Cache[[]types.ADTInstance]
}

// Option customizes the adapter.
type Option func(*Adapter)

// WithBaseURL overrides the ARM endpoint, for tests.
func WithBaseURL(u string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithInstanceMaxAge overrides the instance cache max-age.
func WithInstanceMaxAge(maxAge time.Duration) Option {
	return func(a *Adapter) {
		if maxAge > 0 {
			a.instances = cache.New[[]types.ADTInstance](maxAge)
		}
	}
}

// New creates the adapter. tenantID scopes subscription discovery;
// objectID identifies the signed-in principal for role filtering.
func New(tokens auth.TokenProvider, rest *restclient.Client, log zerolog.Logger, tenantID, objectID string, opts ...Option) *Adapter {
	a := &Adapter{
		tokens:    tokens,
		rest:      rest,
		log:       log.With().Str("adapter", "management").Logger(),
		baseURL:   defaultBaseURL,
		tenantID:  tenantID,
		objectID:  objectID,
		instances: cache.New[[]types.ADTInstance](cache.InstanceMaxAge),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BaseURL returns the ARM endpoint in use.
func (a *Adapter) BaseURL() string {
	return a.baseURL
}

type listEnvelope[T any] struct {
	Value []T `json:"value"`
}

// GetSubscriptions lists every subscription the principal can see.
func (a *Adapter) GetSubscriptions(ctx context.Context) result.Result[[]types.Subscription] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceManagement, func(ctx context.Context, token string) ([]types.Subscription, error) {
		var out listEnvelope[types.Subscription]
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "GET",
			URL:    a.baseURL + "/subscriptions",
			Token:  token,
			Query:  url.Values{"api-version": []string{subscriptionsAPIVersion}},
		}, &out)
		if err != nil {
			return nil, err
		}
		return out.Value, nil
	})
}

// GetADTInstances discovers the tenant's digital twin instances the
// principal can actually read twin data from. Per-subscription listings
// and per-instance role lookups fan out concurrently; individual
// failures are pushed as non-catastrophic so one bad subscription does
// not hide the rest.
func (a *Adapter) GetADTInstances(ctx context.Context) result.Result[[]types.ADTInstance] {
	if v, ok := a.instances.Get(a.tenantID); ok {
		return result.Ok(v)
	}

	sb := sandbox.New(a.tokens)
	res := sandbox.Run(ctx, sb, auth.AudienceManagement, func(ctx context.Context, token string) ([]types.ADTInstance, error) {
		subs, err := a.listSubscriptions(ctx, token)
		if err != nil {
			return nil, err
		}

		var subIDs []string
		for _, s := range subs {
			if s.TenantID == a.tenantID {
				subIDs = append(subIDs, s.SubscriptionID)
			}
		}

		// Index-aligned fan-out: perSub[i] belongs to subIDs[i].
		perSub := make([][]types.Resource, len(subIDs))
		g, gctx := errgroup.WithContext(ctx)
		for i, subID := range subIDs {
			g.Go(func() error {
				resources, err := a.listADTInstanceResources(gctx, token, subID)
				if err != nil {
					sb.PushPartial(fmt.Errorf("subscription %s: %w", subID, err))
					return nil
				}
				perSub[i] = resources
				return nil
			})
		}
		_ = g.Wait()

		required := types.RequiredADTInstanceRoles()
		var instances []types.ADTInstance
		for _, resources := range perSub {
			readable, err := a.filterByAssignedRoles(ctx, token, resources, required)
			if err != nil {
				sb.PushPartial(err)
				continue
			}
			instances = append(instances, readable...)
		}
		return instances, nil
	})

	if !res.HasNoData() {
		a.instances.Set(a.tenantID, res.Data())
	}
	return res
}

// GetResourcesParams selects what GetResources lists.
type GetResourcesParams struct {
	// ResourceType filters results, e.g. types.ResourceTypeStorageBlobContainer.
	ResourceType string
	// ProviderEndpoint is the provider path under each subscription,
	// e.g. "Microsoft.Storage/storageAccounts/{acct}/blobServices/default/containers".
	ProviderEndpoint string
	// APIVersion overrides the default when the provider needs one.
	APIVersion string
}

// GetResources lists resources under a provider endpoint across every
// accessible subscription. Per-subscription failures are pushed as
// non-catastrophic and their results omitted.
func (a *Adapter) GetResources(ctx context.Context, params GetResourcesParams) result.Result[[]types.Resource] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceManagement, func(ctx context.Context, token string) ([]types.Resource, error) {
		subs, err := a.listSubscriptions(ctx, token)
		if err != nil {
			return nil, err
		}

		apiVersion := params.APIVersion
		if apiVersion == "" {
			apiVersion = storageAPIVersion
		}

		perSub := make([][]types.Resource, len(subs))
		g, gctx := errgroup.WithContext(ctx)
		for i, sub := range subs {
			g.Go(func() error {
				var out listEnvelope[types.Resource]
				err := a.rest.DoJSON(gctx, restclient.Request{
					Method: "GET",
					URL:    fmt.Sprintf("%s/subscriptions/%s/providers/%s", a.baseURL, sub.SubscriptionID, params.ProviderEndpoint),
					Token:  token,
					Query:  url.Values{"api-version": []string{apiVersion}},
				}, &out)
				if err != nil {
					sb.PushPartial(fmt.Errorf("subscription %s: %w", sub.SubscriptionID, err))
					return nil
				}
				perSub[i] = out.Value
				return nil
			})
		}
		_ = g.Wait()

		var resources []types.Resource
		for _, rs := range perSub {
			for _, r := range rs {
				if params.ResourceType == "" || strings.EqualFold(r.Type, params.ResourceType) {
					resources = append(resources, r)
				}
			}
		}
		return resources, nil
	})
}

// GetRoleAssignments lists the principal's role assignments at the scope
// of resourceID.
func (a *Adapter) GetRoleAssignments(ctx context.Context, resourceID string) result.Result[[]types.RoleAssignment] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceManagement, func(ctx context.Context, token string) ([]types.RoleAssignment, error) {
		return a.listRoleAssignments(ctx, token, resourceID)
	})
}

// AssignRole creates a role assignment for the principal at the scope of
// resourceID.
func (a *Adapter) AssignRole(ctx context.Context, roleDefinitionID, resourceID string) result.Result[types.RoleAssignment] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceManagement, func(ctx context.Context, token string) (types.RoleAssignment, error) {
		assignmentName := uuid.NewString()
		subscriptionID := subscriptionFromResourceID(resourceID)
		body := map[string]interface{}{
			"properties": map[string]string{
				"roleDefinitionId": fmt.Sprintf("/subscriptions/%s/providers/Microsoft.Authorization/roleDefinitions/%s", subscriptionID, roleDefinitionID),
				"principalId":      a.objectID,
			},
		}
		var out types.RoleAssignment
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "PUT",
			URL:    fmt.Sprintf("%s%s/providers/Microsoft.Authorization/roleAssignments/%s", a.baseURL, resourceID, assignmentName),
			Token:  token,
			Query:  url.Values{"api-version": []string{roleAssignmentsAPIVersion}},
			Body:   body,
		}, &out)
		if err != nil {
			return types.RoleAssignment{}, err
		}
		a.log.Info().
			Str("role_definition_id", roleDefinitionID).
			Str("scope", resourceID).
			Msg("role assignment created")
		telemetry.RecordRoleAssigned(ctx, roleDefinitionID)
		return out, nil
	})
}

func (a *Adapter) listSubscriptions(ctx context.Context, token string) ([]types.Subscription, error) {
	var out listEnvelope[types.Subscription]
	err := a.rest.DoJSON(ctx, restclient.Request{
		Method: "GET",
		URL:    a.baseURL + "/subscriptions",
		Token:  token,
		Query:  url.Values{"api-version": []string{subscriptionsAPIVersion}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (a *Adapter) listADTInstanceResources(ctx context.Context, token, subscriptionID string) ([]types.Resource, error) {
	var out listEnvelope[types.Resource]
	err := a.rest.DoJSON(ctx, restclient.Request{
		Method: "GET",
		URL:    fmt.Sprintf("%s/subscriptions/%s/providers/Microsoft.DigitalTwins/digitalTwinsInstances", a.baseURL, subscriptionID),
		Token:  token,
		Query:  url.Values{"api-version": []string{adtInstancesAPIVersion}},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func (a *Adapter) listRoleAssignments(ctx context.Context, token, resourceID string) ([]types.RoleAssignment, error) {
	var out listEnvelope[types.RoleAssignment]
	err := a.rest.DoJSON(ctx, restclient.Request{
		Method: "GET",
		URL:    fmt.Sprintf("%s%s/providers/Microsoft.Authorization/roleAssignments", a.baseURL, resourceID),
		Token:  token,
		Query: url.Values{
			"api-version": []string{roleAssignmentsAPIVersion},
			"$filter":     []string{fmt.Sprintf("atScope() and assignedTo('%s')", a.objectID)},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

// filterByAssignedRoles keeps the instances whose scope carries at least
// one role from each interchangeable group (and all enforced roles) for
// the principal. Role lookups fan out concurrently, index-aligned with
// the input.
func (a *Adapter) filterByAssignedRoles(ctx context.Context, token string, resources []types.Resource, required types.RoleGroup) ([]types.ADTInstance, error) {
	assignments := make([][]types.RoleAssignment, len(resources))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range resources {
		g.Go(func() error {
			list, err := a.listRoleAssignments(gctx, token, r.ID)
			if err != nil {
				return fmt.Errorf("role assignments for %s: %w", r.ID, err)
			}
			assignments[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var instances []types.ADTInstance
	for i, r := range resources {
		assigned := make([]string, 0, len(assignments[i]))
		for _, ra := range assignments[i] {
			assigned = append(assigned, ra.Properties.RoleDefinitionGUID())
		}
		if hasRequiredRoles(required, assigned) {
			instances = append(instances, types.ADTInstance{
				Name:       r.Name,
				HostName:   r.Properties.HostName,
				ResourceID: r.ID,
				Location:   r.Location,
			})
		}
	}
	return instances, nil
}

func hasRequiredRoles(required types.RoleGroup, assigned []string) bool {
	has := func(role string) bool {
		for _, a := range assigned {
			if strings.EqualFold(a, role) {
				return true
			}
		}
		return false
	}
	for _, role := range required.Enforced {
		if !has(role) {
			return false
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
			return false
		}
	}
	return true
}

// subscriptionFromResourceID pulls the subscription GUID out of a full
// ARM resource ID.
func subscriptionFromResourceID(resourceID string) string {
	parts := strings.Split(resourceID, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "subscriptions" {
			return parts[i+1]
		}
	}
	return ""
}
