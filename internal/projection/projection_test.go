package projection_test

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bit-project/bit/internal/document"
	"github.com/bit-project/bit/internal/integrity"
	"github.com/bit-project/bit/internal/projection"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name string `json:"name,omitempty"`
	Add  int    `json:"add"`
	Fail bool   `json:"fail,omitempty"`
}

// tally sums the amounts of its actions and counts folds.
type tally struct {
	Name    string `json:"name"`
	Total   int    `json:"total"`
	Folds   int    `json:"folds"`
	LastUID string `json:"last_uid"`
}

func (t *tally) StorageID() string { return "tally" }

func (t *tally) Patch(kind model.ActionKind, _ time.Time, uid string) error {
	var e entry
	if err := kind.Decode(&e); err != nil {
		return err
	}
	if e.Fail {
		return errors.New("rejected")
	}
	if kind.IsCreate() {
		t.Name = e.Name
	}
	t.Total += e.Add
	t.Folds++
	t.LastUID = uid
	return nil
}

func newIndex() *projection.Index[tally, *tally] {
	return projection.NewIndex[tally]()
}

func addLocal(t testing.TB, d *document.Document, e entry) *model.ActionObject {
	var kind model.ActionKind
	var err error
	if len(d.Actions) == 0 {
		kind, err = model.Create(e)
	} else {
		kind, err = model.Patch(e)
	}
	require.NoError(t, err)
	a := d.CreateAction(kind, "alice")
	require.NoError(t, d.Insert(a))
	return a
}

func signedPatch(t testing.TB, d *document.Document, parent model.ActionID, add int) *model.ActionObject {
	auth, err := model.NewServerAuthority(model.ServerMode(":0"), integrity.DigestSigner{})
	require.NoError(t, err)
	kind, err := model.Patch(entry{Add: add})
	require.NoError(t, err)
	a := model.NewActionObject(d.StorageID, d.ID, "bob", &parent, kind)
	require.NoError(t, a.SignRemote(auth))
	return a
}

func TestSyncWithDoc_Incremental(t *testing.T) {
	x := newIndex()
	d := document.New(model.NewObjectID(), "tally")
	addLocal(t, d, entry{Name: "cash", Add: 10})
	require.NoError(t, x.SyncWithDoc(d))

	v, ok := x.Get(d.ID)
	require.True(t, ok)
	assert.Equal(t, "cash", v.Name)
	assert.Equal(t, 10, v.Total)

	addLocal(t, d, entry{Add: 5})
	last := addLocal(t, d, entry{Add: -3})
	require.NoError(t, x.SyncWithDoc(d))

	v, _ = x.Get(d.ID)
	assert.Equal(t, 12, v.Total)
	assert.Equal(t, 3, v.Folds)
	assert.Equal(t, 0, x.Rebuilds())

	ref, ok := x.Ref(d.ID)
	require.True(t, ok)
	assert.Equal(t, 3, ref.Position)
	assert.Equal(t, last.ID, *ref.LastActionID)

	// Nothing new: nothing folded.
	require.NoError(t, x.SyncWithDoc(d))
	v, _ = x.Get(d.ID)
	assert.Equal(t, 3, v.Folds)
}

func TestSyncWithDoc_RebuildsWhenLogReshaped(t *testing.T) {
	auth, err := model.NewServerAuthority(model.ServerMode(":0"), integrity.DigestSigner{})
	require.NoError(t, err)
	d := document.New(model.NewObjectID(), "tally")
	kind, err := model.Create(entry{Name: "cash", Add: 1})
	require.NoError(t, err)
	root := model.NewActionObject("tally", d.ID, "bob", nil, kind)
	require.NoError(t, root.SignRemote(auth))
	require.NoError(t, d.Insert(root))
	addLocal(t, d, entry{Add: 100})

	x := newIndex()
	require.NoError(t, x.SyncWithDoc(d))

	// A remote action lands between root and the local tail.
	require.NoError(t, d.Insert(signedPatch(t, d, root.ID, 10)))
	require.NoError(t, x.SyncWithDoc(d))

	v, _ := x.Get(d.ID)
	assert.Equal(t, 111, v.Total)
	assert.Equal(t, 3, v.Folds)
	assert.Equal(t, 1, x.Rebuilds())
}

func TestSyncWithDoc_WrongStorage(t *testing.T) {
	x := newIndex()
	d := document.New(model.NewObjectID(), "other")
	addLocal(t, d, entry{Add: 1})
	assert.ErrorIs(t, x.SyncWithDoc(d), errclass.ErrStorageUnknown)
}

func TestSyncWithDoc_ReducerErrorDropsRef(t *testing.T) {
	x := newIndex()
	d := document.New(model.NewObjectID(), "tally")
	addLocal(t, d, entry{Add: 1})
	require.NoError(t, x.SyncWithDoc(d))

	addLocal(t, d, entry{Fail: true})
	require.Error(t, x.SyncWithDoc(d))
	_, ok := x.Get(d.ID)
	assert.False(t, ok)
}

func TestAll_SortedByObjectID(t *testing.T) {
	x := newIndex()
	for i := 0; i < 5; i++ {
		d := document.New(model.NewObjectID(), "tally")
		addLocal(t, d, entry{Add: i})
		require.NoError(t, x.SyncWithDoc(d))
	}
	var prev model.ObjectID
	n := 0
	for id := range x.All() {
		assert.Greater(t, string(id), string(prev))
		prev = id
		n++
	}
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, x.Len())
}

func TestSet_Dispatch(t *testing.T) {
	x := newIndex()
	s := projection.NewSet(x)
	assert.Equal(t, []string{"tally"}, s.StorageIDs())
	assert.True(t, s.Has("tally"))

	d := document.New(model.NewObjectID(), "tally")
	addLocal(t, d, entry{Add: 7})
	require.NoError(t, s.SyncWithDoc(d))
	v, _ := x.Get(d.ID)
	assert.Equal(t, 7, v.Total)

	unknown := document.New(model.NewObjectID(), "ghost")
	addLocal(t, unknown, entry{Add: 1})
	assert.ErrorIs(t, s.SyncWithDoc(unknown), errclass.ErrStorageUnknown)

	s.Remove("tally", d.ID)
	assert.Equal(t, 0, x.Len())

	require.NoError(t, s.Rebuild([]*document.Document{d}))
	assert.Equal(t, 1, x.Len())
}

func TestCache_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	cache, err := projection.OpenCache(path)
	require.NoError(t, err)

	x := newIndex()
	require.NoError(t, x.AttachCache(cache))
	d := document.New(model.NewObjectID(), "tally")
	addLocal(t, d, entry{Name: "cash", Add: 4})
	addLocal(t, d, entry{Add: 4})
	require.NoError(t, x.SyncWithDoc(d))
	require.NoError(t, cache.Close())

	cache, err = projection.OpenCache(path)
	require.NoError(t, err)
	defer cache.Close()

	row, ok, err := cache.Get(d.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, row.Position)

	y := newIndex()
	require.NoError(t, y.AttachCache(cache))
	v, ok := y.Get(d.ID)
	require.True(t, ok)
	assert.Equal(t, 8, v.Total)

	// Only the new suffix is folded on top of the cached value.
	addLocal(t, d, entry{Add: 1})
	require.NoError(t, y.SyncWithDoc(d))
	v, _ = y.Get(d.ID)
	assert.Equal(t, 9, v.Total)
	assert.Equal(t, 3, v.Folds)
	assert.Equal(t, 0, y.Rebuilds())

	y.Reset()
	rows, err := cache.Rows("tally")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCheck_LeavesIndexUntouched(t *testing.T) {
	x := newIndex()
	d := document.New(model.NewObjectID(), "tally")
	addLocal(t, d, entry{Name: "cash", Add: 2})
	require.NoError(t, x.SyncWithDoc(d))

	addLocal(t, d, entry{Add: 3})
	require.NoError(t, x.Check(d))
	v, _ := x.Get(d.ID)
	assert.Equal(t, 2, v.Total)

	addLocal(t, d, entry{Fail: true})
	require.Error(t, x.Check(d))
	v, ok := x.Get(d.ID)
	require.True(t, ok)
	assert.Equal(t, 2, v.Total)
	assert.Equal(t, 1, v.Folds)

	other := document.New(model.NewObjectID(), "other")
	addLocal(t, other, entry{Add: 1})
	assert.ErrorIs(t, x.Check(other), errclass.ErrStorageUnknown)
}

func TestSyncWithDoc_ReducerErrorDropsCachedRow(t *testing.T) {
	cache, err := projection.OpenCache(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer cache.Close()

	x := newIndex()
	require.NoError(t, x.AttachCache(cache))
	d := document.New(model.NewObjectID(), "tally")
	addLocal(t, d, entry{Add: 1})
	require.NoError(t, x.SyncWithDoc(d))

	addLocal(t, d, entry{Fail: true})
	require.Error(t, x.SyncWithDoc(d))
	_, ok, err := cache.Get(d.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

// Run with -race: readers iterate while the writer folds new actions.
func TestIndex_ReadersDuringSync(t *testing.T) {
	x := newIndex()
	docs := make([]*document.Document, 8)
	for i := range docs {
		docs[i] = document.New(model.NewObjectID(), "tally")
		addLocal(t, docs[i], entry{Add: 1})
		require.NoError(t, x.SyncWithDoc(docs[i]))
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				sum := 0
				for _, v := range x.All() {
					sum += v.Total
				}
				_ = sum
				_, _ = x.Get(docs[0].ID)
				_, _ = x.Ref(docs[1].ID)
				_ = x.Len()
			}
		}()
	}

	for round := 0; round < 50; round++ {
		for _, d := range docs {
			addLocal(t, d, entry{Add: 1})
			require.NoError(t, x.SyncWithDoc(d))
		}
	}
	close(stop)
	wg.Wait()

	total := 0
	for _, v := range x.All() {
		total += v.Total
	}
	assert.Equal(t, 8*51, total)
}
