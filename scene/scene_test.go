package scene

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/types"
)

// fakeARM is a minimal ARM control plane: one tenant, one subscription,
// with configurable instances, containers, role assignments and
// time-series connections.
type fakeARM struct {
	t *testing.T

	tenantID       string
	subscriptionID string

	instances    []types.Resource
	containers   []types.Resource
	assignments  map[string][]types.RoleAssignment // by scope resource ID
	tsConnection map[string]string                 // instance resource ID -> "endpoint|database"

	// failAssignRoles holds role definition GUIDs whose PUT should 500.
	failAssignRoles map[string]bool

	subscriptionCalls atomic.Int32

	mu            sync.Mutex
	assignedRoles []string
}

func (f *fakeARM) recordedAssignments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.assignedRoles...)
}

func newFakeARM(t *testing.T) *fakeARM {
	return &fakeARM{
		t:               t,
		tenantID:        "tenant-1",
		subscriptionID:  "sub-1",
		assignments:     map[string][]types.RoleAssignment{},
		tsConnection:    map[string]string{},
		failAssignRoles: map[string]bool{},
	}
}

func (f *fakeARM) grantRoles(scope string, roleGUIDs ...string) {
	for _, guid := range roleGUIDs {
		f.assignments[scope] = append(f.assignments[scope], types.RoleAssignment{
			ID:   scope + "/providers/Microsoft.Authorization/roleAssignments/" + guid,
			Name: guid,
			Properties: types.RoleAssignmentProperties{
				RoleDefinitionID: "/subscriptions/" + f.subscriptionID + "/providers/Microsoft.Authorization/roleDefinitions/" + guid,
				PrincipalID:      "object-1",
			},
		})
	}
}

func (f *fakeARM) addInstance(name, hostName, location string) string {
	id := fmt.Sprintf("/subscriptions/%s/resourceGroups/rg/providers/Microsoft.DigitalTwins/digitalTwinsInstances/%s", f.subscriptionID, name)
	f.instances = append(f.instances, types.Resource{
		ID:         id,
		Name:       name,
		Type:       types.ResourceTypeDigitalTwinInstance,
		Location:   location,
		Properties: types.ResourceProperties{HostName: hostName},
	})
	return id
}

func (f *fakeARM) addContainer(account, container string) string {
	id := fmt.Sprintf("/subscriptions/%s/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/%s/blobServices/default/containers/%s", f.subscriptionID, account, container)
	f.containers = append(f.containers, types.Resource{
		ID:   id,
		Name: container,
		Type: types.ResourceTypeStorageBlobContainer,
	})
	return id
}

func (f *fakeARM) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case path == "/subscriptions":
			f.subscriptionCalls.Add(1)
			writeJSON(w, map[string]interface{}{"value": []types.Subscription{
				{SubscriptionID: f.subscriptionID, TenantID: f.tenantID, DisplayName: "Test"},
			}})

		case strings.HasSuffix(path, "/providers/Microsoft.DigitalTwins/digitalTwinsInstances"):
			writeJSON(w, map[string]interface{}{"value": f.instances})

		case strings.HasSuffix(path, "/timeSeriesDatabaseConnections"):
			instanceID := strings.TrimSuffix(path, "/timeSeriesDatabaseConnections")
			conn, ok := f.tsConnection[instanceID]
			if !ok {
				writeJSON(w, map[string]interface{}{"value": []interface{}{}})
				return
			}
			endpoint, database, _ := strings.Cut(conn, "|")
			writeJSON(w, map[string]interface{}{"value": []map[string]interface{}{
				{"properties": map[string]string{
					"adxEndpointUri":  endpoint,
					"adxDatabaseName": database,
				}},
			}})

		case r.Method == http.MethodPut && strings.Contains(path, "/providers/Microsoft.Authorization/roleAssignments/"):
			var body struct {
				Properties types.RoleAssignmentProperties `json:"properties"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			guid := body.Properties.RoleDefinitionGUID()
			if f.failAssignRoles[guid] {
				http.Error(w, "conflict", http.StatusInternalServerError)
				return
			}
			f.mu.Lock()
			f.assignedRoles = append(f.assignedRoles, guid)
			f.mu.Unlock()
			writeJSON(w, types.RoleAssignment{
				ID:         path,
				Name:       guid,
				Properties: body.Properties,
			})

		case strings.HasSuffix(path, "/providers/Microsoft.Authorization/roleAssignments"):
			scope := strings.TrimSuffix(path, "/providers/Microsoft.Authorization/roleAssignments")
			writeJSON(w, map[string]interface{}{"value": f.assignments[scope]})

		case strings.Contains(path, "/blobServices/default/containers"):
			writeJSON(w, map[string]interface{}{"value": f.containers})

		default:
			f.t.Errorf("fake ARM got unexpected request: %s %s", r.Method, path)
			http.NotFound(w, r)
		}
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// newTestAdapter builds a composite adapter wired to the fake ARM server.
func newTestAdapter(t *testing.T, arm *fakeARM, cfg Config) *Adapter {
	t.Helper()
	srv := httptest.NewServer(arm.handler())
	t.Cleanup(srv.Close)

	tokens := &auth.StaticTokenProvider{Tokens: map[auth.Audience]string{
		auth.AudiencePrimary: "token",
	}}
	if cfg.TenantID == "" {
		cfg.TenantID = arm.tenantID
	}
	if cfg.ObjectID == "" {
		cfg.ObjectID = "object-1"
	}
	return New(tokens, cfg, WithARMBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}
