package engine

import (
	"github.com/bit-project/bit/internal/document"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/bit-project/bit/pkg/pathutil"
)

// Guard is a precondition checked while the repository is locked, so no
// other action lands between the check and the write.
type Guard func() error

func checkGuards(guards []Guard) error {
	for _, g := range guards {
		if err := g(); err != nil {
			return err
		}
	}
	return nil
}

// CreateRecord starts a new record of storageID with a Create action and
// returns the staged action.
func (r *Repository) CreateRecord(storageID string, kind model.ActionKind, guards ...Guard) (*model.ActionObject, error) {
	if !kind.IsCreate() {
		return nil, errclass.ErrInvalidAction.WithMessagef("a record starts with a create action, got %s", kind.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireClient("create"); err != nil {
		return nil, err
	}
	if err := checkGuards(guards); err != nil {
		return nil, err
	}
	a := model.NewActionObject(storageID, model.NewObjectID(), r.cfg.User, nil, kind)
	if _, err := r.addAction(a); err != nil {
		return nil, err
	}
	return a, nil
}

// PatchRecord appends a Patch action to record id and returns it.
func (r *Repository) PatchRecord(id model.ObjectID, kind model.ActionKind, guards ...Guard) (*model.ActionObject, error) {
	if !kind.IsPatch() {
		return nil, errclass.ErrInvalidAction.WithMessagef("an existing record takes patch actions, got %s", kind.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireClient("patch"); err != nil {
		return nil, err
	}
	if err := checkGuards(guards); err != nil {
		return nil, err
	}
	if !r.details.Has(id) {
		return nil, errclass.ErrPatchWithoutDocument.WithMessagef("record %s", id)
	}
	d, err := r.docs.Load(id)
	if err != nil {
		return nil, err
	}
	a := d.CreateAction(kind, r.cfg.User)
	if _, err := r.addAction(a); err != nil {
		return nil, err
	}
	return a, nil
}

// AddAction inserts a into its document, persists it and replays it into the
// projections. A Create allocates the document; a Patch needs an existing one.
// A local action the record's reducer rejects is refused before anything is
// written. A remote action is always kept; a reducer failure only drops the
// record from its projection and is reported by Status and Verify.
func (r *Repository) AddAction(a *model.ActionObject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.addAction(a)
	return err
}

func (r *Repository) addAction(a *model.ActionObject) (*document.Document, error) {
	if err := pathutil.ValidateStorageID(a.StorageID); err != nil {
		return nil, err
	}

	var d *document.Document
	known := r.details.Has(a.ObjectID)
	switch {
	case known:
		if a.Action.IsCreate() && a.IsLocal() {
			return nil, errclass.ErrDocumentExists.WithMessagef("record %s", a.ObjectID)
		}
		loaded, err := r.docs.Load(a.ObjectID)
		if err != nil {
			return nil, err
		}
		d = loaded
	case a.Action.IsCreate():
		d = document.New(a.ObjectID, a.StorageID)
	default:
		return nil, errclass.ErrPatchWithoutDocument.WithMessagef("record %s", a.ObjectID)
	}

	wasConflict := d.IsConflict()
	if err := d.Insert(a); err != nil {
		return nil, err
	}
	if a.IsLocal() && r.projections.Has(d.StorageID) {
		if err := r.projections.Check(d); err != nil {
			return nil, errclass.ErrInvalidAction.WithMessage(err.Error())
		}
	}
	if err := r.docs.Save(d); err != nil {
		return nil, err
	}
	if !known {
		r.details.Add(d.ID, d.StorageID)
		if err := r.repo.SaveDetails(r.details); err != nil {
			return nil, err
		}
	}
	if !wasConflict && d.IsConflict() {
		r.conflictDetected(d, a)
	}
	r.refreshProjection(d)
	return d, nil
}

// refreshProjection replays d into its projection. Storage ids without a
// registered projection are kept but not materialized. The projection is a
// cache: a failed replay drops the record from it, is logged and counted, and
// stays listed in Status until a later replay of the record succeeds.
func (r *Repository) refreshProjection(d *document.Document) {
	if !r.projections.Has(d.StorageID) {
		return
	}
	err := r.projections.SyncWithDoc(d)
	if err == nil {
		delete(r.projectionErrors, d.ID)
		return
	}
	r.projectionErrors[d.ID] = err.Error()
	r.metrics.RecordIntegrityFailure("projection")
	r.logger.WarnErr("projection replay", err, map[string]any{
		"object_id":  string(d.ID),
		"storage_id": d.StorageID,
	})
}
