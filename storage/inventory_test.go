package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twinscape/twinscape/types"
)

func testInstances() []types.ADTInstance {
	return []types.ADTInstance{
		{
			Name:       "factory",
			HostName:   "factory.api.weu.digitaltwins.azure.net",
			ResourceID: "/subscriptions/sub-1/resourceGroups/rg/providers/Microsoft.DigitalTwins/digitalTwinsInstances/factory",
			Location:   "westeurope",
		},
		{
			Name:       "warehouse",
			HostName:   "warehouse.api.weu.digitaltwins.azure.net",
			ResourceID: "/subscriptions/sub-1/resourceGroups/rg/providers/Microsoft.DigitalTwins/digitalTwinsInstances/warehouse",
			Location:   "westeurope",
		},
	}
}

func newTestStore(t *testing.T) *InventoryStore {
	t.Helper()
	s, err := NewInventoryStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndListInstances(t *testing.T) {
	s := newTestStore(t)

	rev, err := s.SaveInstances("tenant-1", testInstances())
	require.NoError(t, err)
	assert.Equal(t, int64(1), rev)

	instances, ok, err := s.ListInstances("tenant-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "fresh snapshot should be served")
	require.Len(t, instances, 2)
	assert.Equal(t, "factory.api.weu.digitaltwins.azure.net", instances[0].HostName)
}

func TestListInstancesWrongTenant(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveInstances("tenant-1", testInstances())
	require.NoError(t, err)

	_, ok, err := s.ListInstances("tenant-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a snapshot for another tenant must not be served")
}

func TestListInstancesExpired(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveInstances("tenant-1", testInstances())
	require.NoError(t, err)

	_, ok, err := s.ListInstances("tenant-1", 0)
	require.NoError(t, err)
	assert.False(t, ok, "zero max-age means every snapshot is stale")
}

func TestListInstancesEmptyStore(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.ListInstances("tenant-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevisionsIncrement(t *testing.T) {
	s := newTestStore(t)
	for want := int64(1); want <= 3; want++ {
		rev, err := s.SaveInstances("tenant-1", testInstances())
		require.NoError(t, err)
		assert.Equal(t, want, rev)
	}
	assert.Equal(t, int64(3), s.LatestRevision())
}

func TestRevisionSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewInventoryStore(dir)
	require.NoError(t, err)
	_, err = s.SaveInstances("tenant-1", testInstances())
	require.NoError(t, err)
	_, err = s.SaveInstances("tenant-1", testInstances())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewInventoryStore(dir)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	assert.Equal(t, int64(2), reopened.LatestRevision())
	rev, err := reopened.SaveInstances("tenant-1", testInstances())
	require.NoError(t, err)
	assert.Equal(t, int64(3), rev)
}

func TestKnownHosts(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveInstances("tenant-1", testInstances())
	require.NoError(t, err)
	_, err = s.SaveInstances("tenant-1", []types.ADTInstance{
		{Name: "annex", HostName: "annex.api.weu.digitaltwins.azure.net"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"annex.api.weu.digitaltwins.azure.net",
		"factory.api.weu.digitaltwins.azure.net",
		"warehouse.api.weu.digitaltwins.azure.net",
	}, s.KnownHosts())
}
