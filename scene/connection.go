package scene

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/internal/restclient"
	"github.com/twinscape/twinscape/result"
	"github.com/twinscape/twinscape/sandbox"
	"github.com/twinscape/twinscape/types"
)

const timeSeriesConnectionsAPIVersion = "2021-06-30-preview"

// GetConnectionInformation resolves where this instance's telemetry is
// historized: the Kusto cluster, database and table. The answer is
// memoized for the adapter's lifetime; once resolved, later calls
// short-circuit without touching the network or the sandbox. A failed
// resolution is recorded as non-catastrophic and leaves the state
// unresolved so the next call retries.
func (a *Adapter) GetConnectionInformation(ctx context.Context) result.Result[types.ADXConnection] {
	a.mu.Lock()
	if a.conn.Complete() {
		conn := a.conn
		a.mu.Unlock()
		return result.Ok(conn)
	}
	a.mu.Unlock()

	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceManagement, func(ctx context.Context, token string) (types.ADXConnection, error) {
		instancesResult := a.GetADTInstances(ctx)
		if instancesResult.HasNoData() {
			return types.ADXConnection{}, fmt.Errorf("could not list digital twin instances")
		}

		instance, ok := a.matchInstance(instancesResult.Data())
		if !ok {
			return types.ADXConnection{}, fmt.Errorf("no accessible instance matches host %q", a.adtHostURL)
		}

		conn, err := a.fetchTimeSeriesConnection(ctx, token, instance)
		if err != nil {
			sb.PushRaw(err)
			a.mu.Lock()
			conn = a.conn
			a.mu.Unlock()
			return conn, nil
		}

		a.mu.Lock()
		a.conn = conn
		a.mu.Unlock()
		return conn, nil
	})
}

// matchInstance finds the discovered instance whose host name matches
// the configured ADT host.
func (a *Adapter) matchInstance(instances []types.ADTInstance) (types.ADTInstance, bool) {
	want := hostOnly(a.adtHostURL)
	for _, inst := range instances {
		if hostOnly(inst.HostName) == want {
			return inst, true
		}
	}
	return types.ADTInstance{}, false
}

func (a *Adapter) fetchTimeSeriesConnection(ctx context.Context, token string, instance types.ADTInstance) (types.ADXConnection, error) {
	var out struct {
		Value []struct {
			Properties struct {
				ADXEndpointURI  string `json:"adxEndpointUri"`
				ADXDatabaseName string `json:"adxDatabaseName"`
			} `json:"properties"`
		} `json:"value"`
	}
	err := a.rest.DoJSON(ctx, restclient.Request{
		Method: "GET",
		URL:    a.BaseURL() + instance.ResourceID + "/timeSeriesDatabaseConnections",
		Token:  token,
		Query:  url.Values{"api-version": []string{timeSeriesConnectionsAPIVersion}},
	}, &out)
	if err != nil {
		return types.ADXConnection{}, fmt.Errorf("time series connections for %s: %w", instance.Name, err)
	}
	if len(out.Value) == 0 {
		return types.ADXConnection{}, fmt.Errorf("instance %s has no time series database connection", instance.Name)
	}

	props := out.Value[0].Properties
	return types.ADXConnection{
		ClusterURL:   props.ADXEndpointURI,
		DatabaseName: props.ADXDatabaseName,
		TableName:    types.HistoryTableName(props.ADXDatabaseName, instance.Location),
	}, nil
}

func hostOnly(s string) string {
	s = strings.TrimSuffix(s, "/")
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimPrefix(strings.TrimPrefix(s, "https://"), "http://")
}
