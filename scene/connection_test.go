package scene

import (
	"context"
	"testing"

	"github.com/twinscape/twinscape/types"
)

func TestGetConnectionInformationResolves(t *testing.T) {
	arm := newFakeARM(t)
	instanceID := arm.addInstance("factory", "factory.api.weu.digitaltwins.azure.net", "westeurope")
	arm.grantRoles(instanceID, types.RoleADTDataReader)
	arm.tsConnection[instanceID] = "https://cluster.westeurope.kusto.windows.net|history-db"

	a := newTestAdapter(t, arm, Config{
		ADTHostURL: "https://factory.api.weu.digitaltwins.azure.net",
	})

	res := a.GetConnectionInformation(context.Background())
	if res.HasNoData() {
		t.Fatalf("expected connection, errors: %+v", res.ErrorInfo())
	}
	conn := res.Data()
	if conn.ClusterURL != "https://cluster.westeurope.kusto.windows.net" {
		t.Errorf("ClusterURL = %q", conn.ClusterURL)
	}
	if conn.DatabaseName != "history-db" {
		t.Errorf("DatabaseName = %q", conn.DatabaseName)
	}
	if conn.TableName != "adt_dh_history_db_westeurope" {
		t.Errorf("TableName = %q", conn.TableName)
	}
}

func TestGetConnectionInformationMemoizes(t *testing.T) {
	arm := newFakeARM(t)
	instanceID := arm.addInstance("factory", "factory.api.weu.digitaltwins.azure.net", "westeurope")
	arm.grantRoles(instanceID, types.RoleADTDataOwner)
	arm.tsConnection[instanceID] = "https://cluster.westeurope.kusto.windows.net|history-db"

	a := newTestAdapter(t, arm, Config{
		ADTHostURL: "https://factory.api.weu.digitaltwins.azure.net",
	})

	first := a.GetConnectionInformation(context.Background())
	callsAfterFirst := arm.subscriptionCalls.Load()

	second := a.GetConnectionInformation(context.Background())
	if arm.subscriptionCalls.Load() != callsAfterFirst {
		t.Error("resolved connection must short-circuit without touching ARM")
	}
	if first.Data() != second.Data() {
		t.Errorf("memoized connection differs: %+v vs %+v", first.Data(), second.Data())
	}
}

func TestGetConnectionInformationNoMatchingInstance(t *testing.T) {
	arm := newFakeARM(t)
	otherID := arm.addInstance("other", "other.api.weu.digitaltwins.azure.net", "westeurope")
	arm.grantRoles(otherID, types.RoleADTDataReader)

	a := newTestAdapter(t, arm, Config{
		ADTHostURL: "https://factory.api.weu.digitaltwins.azure.net",
	})

	res := a.GetConnectionInformation(context.Background())
	if !res.HasNoData() {
		t.Error("no matching instance should fail the call")
	}
	if res.ErrorInfo() == nil || len(res.ErrorInfo().Errors) == 0 {
		t.Error("the failure should be recorded")
	}
}

func TestGetConnectionInformationRetriesAfterMissingConnection(t *testing.T) {
	arm := newFakeARM(t)
	instanceID := arm.addInstance("factory", "factory.api.weu.digitaltwins.azure.net", "westeurope")
	arm.grantRoles(instanceID, types.RoleADTDataReader)
	// No time series connection configured yet.

	a := newTestAdapter(t, arm, Config{
		ADTHostURL: "https://factory.api.weu.digitaltwins.azure.net",
	})

	first := a.GetConnectionInformation(context.Background())
	if first.Data().Complete() {
		t.Fatalf("connection should be unresolved, got %+v", first.Data())
	}
	if info := first.ErrorInfo(); info == nil || len(info.Errors) == 0 {
		t.Error("the missing connection should be recorded as a partial failure")
	}
	if first.Failed() {
		t.Error("an unresolved connection is not catastrophic")
	}

	// The connection appears later; the next call resolves it.
	arm.tsConnection[instanceID] = "https://cluster.westeurope.kusto.windows.net|history-db"
	second := a.GetConnectionInformation(context.Background())
	if !second.Data().Complete() {
		t.Errorf("expected resolution on retry, got %+v", second.Data())
	}
}

func TestHostOnly(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://factory.api.weu.digitaltwins.azure.net", "factory.api.weu.digitaltwins.azure.net"},
		{"https://factory.api.weu.digitaltwins.azure.net/", "factory.api.weu.digitaltwins.azure.net"},
		{"factory.api.weu.digitaltwins.azure.net", "factory.api.weu.digitaltwins.azure.net"},
	}
	for _, tt := range tests {
		if got := hostOnly(tt.in); got != tt.want {
			t.Errorf("hostOnly(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
