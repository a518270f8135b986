package projection

import (
	"sort"

	"github.com/bit-project/bit/internal/document"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
)

// Syncer is the type-erased side of an Index the repository drives.
type Syncer interface {
	StorageID() string
	SyncWithDoc(d *document.Document) error
	Check(d *document.Document) error
	Remove(id model.ObjectID)
	Reset()
	AttachCache(c *Cache) error
}

// Set dispatches documents to the index registered for their storage id.
type Set struct {
	indexes map[string]Syncer
}

// NewSet returns a set serving indexes.
func NewSet(indexes ...Syncer) *Set {
	s := &Set{indexes: make(map[string]Syncer)}
	for _, x := range indexes {
		s.Register(x)
	}
	return s
}

// Register adds x, replacing any index with the same storage id.
func (s *Set) Register(x Syncer) {
	s.indexes[x.StorageID()] = x
}

// Lookup returns the index of storageID.
func (s *Set) Lookup(storageID string) (Syncer, error) {
	x, ok := s.indexes[storageID]
	if !ok {
		return nil, errclass.ErrStorageUnknown.WithMessagef("no projection for storage %q", storageID)
	}
	return x, nil
}

// Has reports whether a projection serves storageID.
func (s *Set) Has(storageID string) bool {
	_, ok := s.indexes[storageID]
	return ok
}

// SyncWithDoc replays d into its index.
func (s *Set) SyncWithDoc(d *document.Document) error {
	x, err := s.Lookup(d.StorageID)
	if err != nil {
		return err
	}
	return x.SyncWithDoc(d)
}

// Check reports whether the index of d's storage id accepts every action
// of d, without changing the index.
func (s *Set) Check(d *document.Document) error {
	x, err := s.Lookup(d.StorageID)
	if err != nil {
		return err
	}
	return x.Check(d)
}

// Remove drops one record from the index of storageID.
func (s *Set) Remove(storageID string, id model.ObjectID) {
	if x, ok := s.indexes[storageID]; ok {
		x.Remove(id)
	}
}

// Rebuild resets every index and replays docs from scratch.
func (s *Set) Rebuild(docs []*document.Document) error {
	for _, x := range s.indexes {
		x.Reset()
	}
	for _, d := range docs {
		if err := s.SyncWithDoc(d); err != nil {
			return err
		}
	}
	return nil
}

// AttachCache attaches c to every registered index.
func (s *Set) AttachCache(c *Cache) error {
	for _, id := range s.StorageIDs() {
		if err := s.indexes[id].AttachCache(c); err != nil {
			return err
		}
	}
	return nil
}

// StorageIDs returns the served storage ids, sorted.
func (s *Set) StorageIDs() []string {
	ids := make([]string, 0, len(s.indexes))
	for id := range s.indexes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
