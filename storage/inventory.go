// Package storage persists the discovered ADT instance inventory so CLI
// runs can reuse a recent discovery instead of re-querying ARM. Each
// save is a new revision; reads serve the latest revision if it is
// young enough.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"

	"github.com/twinscape/twinscape/types"
)

// Bucket names in bbolt
var (
	bucketSnapshots = []byte("snapshots")
	bucketMeta      = []byte("meta")
)

var keyCurrentRev = []byte("current_rev")

// InventoryStore is a revisioned store of instance discovery snapshots.
type InventoryStore struct {
	mu sync.RWMutex

	// In-memory index of instances across revisions
	index *btree.BTreeG[*instanceState]

	db *bbolt.DB

	currentRev int64

	dir string
}

// instanceState tracks one instance in the index.
type instanceState struct {
	HostName     string
	Name         string
	ResourceID   string
	FirstSeenRev int64
	LastSeenRev  int64
}

// snapshot is what one revision stores on disk.
type snapshot struct {
	Revision  int64               `json:"revision"`
	FetchedAt time.Time           `json:"fetched_at"`
	TenantID  string              `json:"tenant_id"`
	Instances []types.ADTInstance `json:"instances"`
}

// NewInventoryStore opens or creates the store under dir.
func NewInventoryStore(dir string) (*InventoryStore, error) {
	dbPath := filepath.Join(dir, "twinscape.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshots, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &InventoryStore{
		index: btree.NewG[*instanceState](32, func(a, b *instanceState) bool {
			return a.HostName < b.HostName
		}),
		db:  db,
		dir: dir,
	}

	if err := s.loadRevision(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the store.
func (s *InventoryStore) Close() error {
	return s.db.Close()
}

// SaveInstances records a new discovery snapshot and returns its
// revision.
func (s *InventoryStore) SaveInstances(tenantID string, instances []types.ADTInstance) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentRev++
	rev := s.currentRev

	snap := snapshot{
		Revision:  rev,
		FetchedAt: time.Now(),
		TenantID:  tenantID,
		Instances: instances,
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		value, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketSnapshots).Put(revKey(rev), value); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyCurrentRev, revKey(rev))
	})
	if err != nil {
		s.currentRev--
		return 0, fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.indexSnapshot(snap)
	return rev, nil
}

// ListInstances returns the latest snapshot's instances when it is
// younger than maxAge. ok is false when there is no snapshot fresh
// enough.
func (s *InventoryStore) ListInstances(tenantID string, maxAge time.Duration) ([]types.ADTInstance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.currentRev == 0 {
		return nil, false, nil
	}

	var snap snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get(revKey(s.currentRev))
		if data == nil {
			return fmt.Errorf("snapshot for revision %d missing", s.currentRev)
		}
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return nil, false, err
	}

	if snap.TenantID != tenantID || time.Since(snap.FetchedAt) >= maxAge {
		return nil, false, nil
	}
	return snap.Instances, true, nil
}

// LatestRevision returns the current revision number.
func (s *InventoryStore) LatestRevision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRev
}

// KnownHosts lists every instance host name the store has ever seen, in
// order.
func (s *InventoryStore) KnownHosts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hosts []string
	s.index.Ascend(func(st *instanceState) bool {
		hosts = append(hosts, st.HostName)
		return true
	})
	return hosts
}

func (s *InventoryStore) loadRevision() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyCurrentRev)
		if data != nil {
			s.currentRev = int64(binary.BigEndian.Uint64(data))
		}
		return nil
	})
}

func (s *InventoryStore) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(_, v []byte) error {
			var snap snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			s.indexSnapshot(snap)
			return nil
		})
	})
}

func (s *InventoryStore) indexSnapshot(snap snapshot) {
	for _, inst := range snap.Instances {
		st := &instanceState{HostName: inst.HostName}
		if existing, ok := s.index.Get(st); ok {
			existing.LastSeenRev = snap.Revision
			continue
		}
		st.Name = inst.Name
		st.ResourceID = inst.ResourceID
		st.FirstSeenRev = snap.Revision
		st.LastSeenRev = snap.Revision
		s.index.ReplaceOrInsert(st)
	}
}

func revKey(rev int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(rev))
	return key
}
