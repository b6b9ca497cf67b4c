package adt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/internal/restclient"
	"github.com/twinscape/twinscape/types"
)

func testTokens() auth.TokenProvider {
	return &auth.StaticTokenProvider{Tokens: map[auth.Audience]string{
		auth.AudiencePrimary: "token",
	}}
}

func twinJSON(id, model string) string {
	return fmt.Sprintf(`{"$dtId":%q,"$etag":"W/\"1\"","$metadata":{"$model":%q},"temperature":20}`, id, model)
}

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(testTokens(), restclient.New(srv.Client()), zerolog.Nop(), srv.URL, "")
}

func TestGetTwinCachesByID(t *testing.T) {
	calls := 0
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/digitaltwins/room-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("api-version"); got != apiVersion {
			t.Errorf("api-version = %q", got)
		}
		fmt.Fprint(w, twinJSON("room-1", "dtmi:example:Room;1"))
	})

	for i := 0; i < 3; i++ {
		res := a.GetTwin(context.Background(), "room-1")
		if res.HasNoData() {
			t.Fatalf("expected twin, errors: %+v", res.ErrorInfo())
		}
		if res.Data().ID != "room-1" {
			t.Errorf("ID = %q", res.Data().ID)
		}
	}
	if calls != 1 {
		t.Errorf("server hit %d times, want 1", calls)
	}
}

func TestGetTwinNotFound(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"DigitalTwinNotFound"}}`, http.StatusNotFound)
	})

	res := a.GetTwin(context.Background(), "nope")
	if !res.HasNoData() {
		t.Error("404 must yield no data")
	}
	info := res.ErrorInfo()
	if info == nil || len(info.Errors) != 1 {
		t.Fatal("the failure should be recorded")
	}
	if info.Errors[0].Kind != "not_found" {
		t.Errorf("Kind = %v, want not_found", info.Errors[0].Kind)
	}
}

func TestUpdateTwinInvalidatesCache(t *testing.T) {
	gets := 0
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			gets++
			fmt.Fprint(w, twinJSON("room-1", "dtmi:example:Room;1"))
		case http.MethodPatch:
			var patches []types.Patch
			if err := json.NewDecoder(r.Body).Decode(&patches); err != nil {
				t.Errorf("decode patches: %v", err)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})

	ctx := context.Background()
	_ = a.GetTwin(ctx, "room-1")
	_ = a.GetTwin(ctx, "room-1")
	if gets != 1 {
		t.Fatalf("gets = %d before update, want 1", gets)
	}

	res := a.UpdateTwin(ctx, "room-1", []types.Patch{{Op: "replace", Path: "/temperature", Value: 22}})
	if res.HasNoData() {
		t.Fatalf("update failed: %+v", res.ErrorInfo())
	}

	_ = a.GetTwin(ctx, "room-1")
	if gets != 2 {
		t.Errorf("gets = %d after update, want 2 (cache invalidated)", gets)
	}
}

func TestCreateTwinRefreshesCache(t *testing.T) {
	gets := 0
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			fmt.Fprint(w, twinJSON("room-2", "dtmi:example:Room;1"))
		case http.MethodGet:
			gets++
			fmt.Fprint(w, twinJSON("room-2", "dtmi:example:Room;1"))
		}
	})

	ctx := context.Background()
	res := a.CreateTwin(ctx, types.Twin{ID: "room-2", Metadata: types.TwinMetadata{Model: "dtmi:example:Room;1"}})
	if res.HasNoData() {
		t.Fatalf("create failed: %+v", res.ErrorInfo())
	}

	// The created twin is already cached
	_ = a.GetTwin(ctx, "room-2")
	if gets != 0 {
		t.Errorf("gets = %d, want 0 (served from the refreshed entry)", gets)
	}
}

func TestQueryTwinsPagination(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["continuationToken"] == "" {
			fmt.Fprintf(w, `{"value":[%s],"continuationToken":"page-2"}`, twinJSON("a", "dtmi:m;1"))
			return
		}
		fmt.Fprintf(w, `{"value":[%s]}`, twinJSON("b", "dtmi:m;1"))
	})

	ctx := context.Background()
	first := a.QueryTwins(ctx, "SELECT * FROM digitaltwins", "")
	if first.Data().ContinuationToken != "page-2" {
		t.Fatalf("ContinuationToken = %q", first.Data().ContinuationToken)
	}
	second := a.QueryTwins(ctx, "SELECT * FROM digitaltwins", first.Data().ContinuationToken)
	if second.Data().ContinuationToken != "" {
		t.Error("last page should have no continuation token")
	}
	if second.Data().Twins[0].ID != "b" {
		t.Errorf("second page twin = %q", second.Data().Twins[0].ID)
	}
}

func TestSearchTwinsEscapesTerm(t *testing.T) {
	var gotQuery string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotQuery = body["query"]
		fmt.Fprint(w, `{"value":[]}`)
	})

	_ = a.SearchTwins(context.Background(), "o'brien", "")
	if !strings.Contains(gotQuery, `o\'brien`) {
		t.Errorf("query literal not escaped: %q", gotQuery)
	}
}

func TestGetExpandedModelWalksExtends(t *testing.T) {
	models := `{"value":[
		{"id":"dtmi:base;1","model":{"@id":"dtmi:base;1"}},
		{"id":"dtmi:mid;1","model":{"@id":"dtmi:mid;1","extends":"dtmi:base;1"}},
		{"id":"dtmi:leaf;1","model":{"@id":"dtmi:leaf;1","extends":["dtmi:mid;1","dtmi:base;1"]}}
	]}`
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, models)
	})

	res := a.GetExpandedModel(context.Background(), "dtmi:leaf;1")
	if res.HasNoData() {
		t.Fatalf("expected models, errors: %+v", res.ErrorInfo())
	}
	expanded := res.Data()
	if len(expanded) != 3 {
		t.Fatalf("expanded = %d models, want 3", len(expanded))
	}
	if expanded[0].ID != "dtmi:leaf;1" {
		t.Errorf("root first, got %q", expanded[0].ID)
	}
}

func TestGetExpandedModelUnknownID(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	})

	res := a.GetExpandedModel(context.Background(), "dtmi:ghost;1")
	if !res.HasNoData() {
		t.Error("unknown model should fail")
	}
	if res.ErrorInfo().Errors[0].Kind != "not_found" {
		t.Errorf("Kind = %v, want not_found", res.ErrorInfo().Errors[0].Kind)
	}
}

func TestCreateModelsInvalidatesList(t *testing.T) {
	lists := 0
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `[{"id":"dtmi:new;1"}]`)
			return
		}
		lists++
		fmt.Fprint(w, `{"value":[{"id":"dtmi:new;1"}]}`)
	})

	ctx := context.Background()
	_ = a.GetAllModels(ctx)
	_ = a.CreateModels(ctx, []interface{}{map[string]string{"@id": "dtmi:new;1"}})
	_ = a.GetAllModels(ctx)
	if lists != 2 {
		t.Errorf("model list fetched %d times, want 2 (invalidated by upload)", lists)
	}
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		hostURL   string
		proxyPath string
		want      string
	}{
		{
			name:    "direct host",
			hostURL: "twin.api.weu.digitaltwins.azure.net",
			want:    "https://twin.api.weu.digitaltwins.azure.net/digitaltwins/x",
		},
		{
			name:    "direct host with scheme",
			hostURL: "https://twin.api.weu.digitaltwins.azure.net",
			want:    "https://twin.api.weu.digitaltwins.azure.net/digitaltwins/x",
		},
		{
			name:      "proxy origin replaces host",
			hostURL:   "twin.api.weu.digitaltwins.azure.net",
			proxyPath: "https://localhost:4280/proxy/adt",
			want:      "https://localhost:4280/proxy/adt/digitaltwins/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(testTokens(), restclient.New(nil), zerolog.Nop(), tt.hostURL, tt.proxyPath)
			if got := a.endpoint("/digitaltwins/x"); got != tt.want {
				t.Errorf("endpoint = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRelationshipLifecycle(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			var rel types.Relationship
			_ = json.NewDecoder(r.Body).Decode(&rel)
			writeJSONResp(w, rel)
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/relationships"):
			fmt.Fprint(w, `{"value":[{"$relationshipId":"contains-1","$relationshipName":"contains","$sourceId":"floor","$targetId":"room-1"}]}`)
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	ctx := context.Background()
	created := a.CreateRelationship(ctx, "floor", types.Relationship{
		ID: "contains-1", Name: "contains", SourceID: "floor", TargetID: "room-1",
	})
	if created.HasNoData() || created.Data().TargetID != "room-1" {
		t.Fatalf("create = %+v", created.Data())
	}

	listed := a.GetRelationships(ctx, "floor")
	if len(listed.Data()) != 1 {
		t.Errorf("relationships = %d, want 1", len(listed.Data()))
	}

	deleted := a.DeleteRelationship(ctx, "floor", "contains-1")
	if deleted.HasNoData() || deleted.Data() != "contains-1" {
		t.Errorf("delete = %+v", deleted.Data())
	}
}

func writeJSONResp(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
