// Package projection maintains materialized record values derived from
// Documents by replaying their actions through per-type reducers.
package projection

import (
	"encoding/json"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/bit-project/bit/internal/document"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/logging"
	"github.com/bit-project/bit/pkg/model"
)

// Model is the reducer contract of a materialized record type. Patch folds one
// action into the receiver and must depend on nothing but its arguments.
// A Create action is folded into a fresh zero value.
type Model interface {
	StorageID() string
	Patch(kind model.ActionKind, dtime time.Time, uid string) error
}

// DocRef is the cached materialized value of one record plus its replay
// cursor: the id and position of the last folded action.
type DocRef[T any] struct {
	ObjectID     model.ObjectID
	StorageID    string
	Data         T
	LastActionID *model.ActionID
	Position     int
}

// Index is the projection of every record of one storage id. Reads never
// trigger replay; the repository drives SyncWithDoc. Readers may run
// concurrently with a sync and see each record either before or after it.
type Index[T any, PT interface {
	*T
	Model
}] struct {
	mu        sync.RWMutex
	storageID string
	refs      map[model.ObjectID]*DocRef[T]
	cache     *Cache
	rebuilds  int
}

// NewIndex returns an empty index for T.
func NewIndex[T any, PT interface {
	*T
	Model
}]() *Index[T, PT] {
	var zero T
	return &Index[T, PT]{
		storageID: PT(&zero).StorageID(),
		refs:      make(map[model.ObjectID]*DocRef[T]),
	}
}

func (x *Index[T, PT]) StorageID() string { return x.storageID }

// SyncWithDoc brings the DocRef of d up to date. When the cursor is the
// action right before the unreplayed suffix only that suffix is folded;
// otherwise the value is rebuilt from scratch so no action is folded twice.
func (x *Index[T, PT]) SyncWithDoc(d *document.Document) error {
	if d.StorageID != x.storageID {
		return errclass.ErrStorageUnknown.WithMessagef("document %s has storage %q, index serves %q", d.ID, d.StorageID, x.storageID)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(d.Actions) == 0 {
		x.remove(d.ID)
		return nil
	}

	ref, ok := x.refs[d.ID]
	start := 0
	if ok && cursorValid(ref, d) {
		start = ref.Position
	} else {
		if ok {
			x.rebuilds++
			logging.WithFields(map[string]any{
				"object_id":  string(d.ID),
				"storage_id": x.storageID,
				"position":   ref.Position,
			}).Debug("projection cursor moved, rebuilding")
		}
		ref = &DocRef[T]{ObjectID: d.ID, StorageID: d.StorageID}
	}
	if start == len(d.Actions) {
		x.refs[d.ID] = ref
		return nil
	}

	// Fold into a copy so a failing reducer leaves no half-applied value.
	next := *ref
	if err := fold[T, PT](&next.Data, d.Actions[start:]); err != nil {
		x.remove(d.ID)
		return fmt.Errorf("%s %s: %w", x.storageID, d.ID, err)
	}
	last := d.Actions[len(d.Actions)-1].ID
	next.LastActionID = &last
	next.Position = len(d.Actions)
	x.refs[d.ID] = &next
	return x.store(&next)
}

// Check folds every action of d into a fresh value without touching the
// index. It reports whether the reducer accepts the whole log.
func (x *Index[T, PT]) Check(d *document.Document) error {
	if d.StorageID != x.storageID {
		return errclass.ErrStorageUnknown.WithMessagef("document %s has storage %q, index serves %q", d.ID, d.StorageID, x.storageID)
	}
	var data T
	return fold[T, PT](&data, d.Actions)
}

func fold[T any, PT interface {
	*T
	Model
}](data *T, actions []*model.ActionObject) error {
	for _, a := range actions {
		if a.Action.IsCreate() {
			var zero T
			*data = zero
		}
		if err := PT(data).Patch(a.Action, a.Dtime, a.UID); err != nil {
			return fmt.Errorf("fold action %s: %w", a.ID, err)
		}
	}
	return nil
}

func cursorValid[T any](ref *DocRef[T], d *document.Document) bool {
	if ref.LastActionID == nil || ref.Position <= 0 || ref.Position > len(d.Actions) {
		return false
	}
	return d.Actions[ref.Position-1].ID == *ref.LastActionID
}

// Get returns the materialized value of id.
func (x *Index[T, PT]) Get(id model.ObjectID) (T, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ref, ok := x.refs[id]
	if !ok {
		var zero T
		return zero, false
	}
	return ref.Data, true
}

// Ref returns a copy of the DocRef of id, cursor included.
func (x *Index[T, PT]) Ref(id model.ObjectID) (DocRef[T], bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	ref, ok := x.refs[id]
	if !ok {
		return DocRef[T]{}, false
	}
	return *ref, true
}

// All iterates the materialized values ordered by object id. The values are
// snapshotted when iteration starts.
func (x *Index[T, PT]) All() iter.Seq2[model.ObjectID, T] {
	return func(yield func(model.ObjectID, T) bool) {
		type entry struct {
			id   model.ObjectID
			data T
		}
		x.mu.RLock()
		entries := make([]entry, 0, len(x.refs))
		for id, ref := range x.refs {
			entries = append(entries, entry{id, ref.Data})
		}
		x.mu.RUnlock()
		sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
		for _, e := range entries {
			if !yield(e.id, e.data) {
				return
			}
		}
	}
}

func (x *Index[T, PT]) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.refs)
}

// Rebuilds counts full rebuilds caused by a moved cursor.
func (x *Index[T, PT]) Rebuilds() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.rebuilds
}

// Remove drops the DocRef of id.
func (x *Index[T, PT]) Remove(id model.ObjectID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.remove(id)
}

func (x *Index[T, PT]) remove(id model.ObjectID) {
	delete(x.refs, id)
	if x.cache != nil {
		if err := x.cache.Delete(id); err != nil {
			logging.WarnErr("drop cached projection", err)
		}
	}
}

// Reset drops every DocRef.
func (x *Index[T, PT]) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.refs = make(map[model.ObjectID]*DocRef[T])
	if x.cache != nil {
		if err := x.cache.DeleteStorage(x.storageID); err != nil {
			logging.WarnErr("drop cached projections", err)
		}
	}
}

// AttachCache loads the cached DocRefs of this storage id and writes every
// later sync through to c. Undecodable rows are skipped; the next sync
// rebuilds them.
func (x *Index[T, PT]) AttachCache(c *Cache) error {
	rows, err := c.Rows(x.storageID)
	if err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, row := range rows {
		ref := &DocRef[T]{ObjectID: row.ObjectID, StorageID: row.StorageID, Position: row.Position}
		if err := json.Unmarshal(row.Data, &ref.Data); err != nil {
			logging.WithFields(map[string]any{"object_id": string(row.ObjectID)}).Warn("skip undecodable cached projection")
			continue
		}
		if row.LastActionID != "" {
			id := row.LastActionID
			ref.LastActionID = &id
		}
		x.refs[row.ObjectID] = ref
	}
	x.cache = c
	return nil
}

func (x *Index[T, PT]) store(ref *DocRef[T]) error {
	if x.cache == nil {
		return nil
	}
	data, err := json.Marshal(ref.Data)
	if err != nil {
		return fmt.Errorf("encode projection %s: %w", ref.ObjectID, err)
	}
	row := Row{ObjectID: ref.ObjectID, StorageID: ref.StorageID, Data: data, Position: ref.Position}
	if ref.LastActionID != nil {
		row.LastActionID = *ref.LastActionID
	}
	return x.cache.Put(row)
}
