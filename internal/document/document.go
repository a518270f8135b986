// Package document implements the per-record action log: ordered insertion,
// chain validation and conflict detection.
package document

import (
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
)

// Document is the full ordered history of one logical record.
//
// While Status is ok, Actions[0] has no parent and every later action names
// its predecessor as parent. Local actions are appended without a check; only
// remote insertions are chain-validated.
type Document struct {
	ID        model.ObjectID        `json:"id"`
	StorageID string                `json:"storage_id"`
	Actions   []*model.ActionObject `json:"actions"`
	Status    model.Status          `json:"status"`
	// Staged lists actions recorded since the last commit.
	Staged []model.ActionID `json:"staged,omitempty"`
}

// New returns an empty document for one record.
func New(id model.ObjectID, storageID string) *Document {
	return &Document{
		ID:        id,
		StorageID: storageID,
		Actions:   []*model.ActionObject{},
		Status:    model.StatusOK,
	}
}

// IsConflict reports whether the chain was found broken.
func (d *Document) IsConflict() bool {
	return d.Status == model.StatusConflict
}

// Tail returns the last action, or nil for an empty document.
func (d *Document) Tail() *model.ActionObject {
	if len(d.Actions) == 0 {
		return nil
	}
	return d.Actions[len(d.Actions)-1]
}

// TailID returns the id of the last action, or nil.
func (d *Document) TailID() *model.ActionID {
	if t := d.Tail(); t != nil {
		id := t.ID
		return &id
	}
	return nil
}

// RemoteTail returns the last signed action, or nil.
func (d *Document) RemoteTail() *model.ActionObject {
	for i := len(d.Actions) - 1; i >= 0; i-- {
		if d.Actions[i].IsRemote() {
			return d.Actions[i]
		}
	}
	return nil
}

// RemoteCount returns the number of signed actions.
func (d *Document) RemoteCount() int {
	n := 0
	for _, a := range d.Actions {
		if a.IsRemote() {
			n++
		}
	}
	return n
}

// HasRemote reports whether the server has confirmed any action.
func (d *Document) HasRemote() bool {
	return d.RemoteTail() != nil
}

// Index returns the position of the action with id, or -1.
func (d *Document) Index(id model.ActionID) int {
	for i, a := range d.Actions {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the action with id, or nil.
func (d *Document) Get(id model.ActionID) *model.ActionObject {
	if i := d.Index(id); i >= 0 {
		return d.Actions[i]
	}
	return nil
}

// CreateAction builds a new local action that follows the current tail. The
// action is not inserted.
func (d *Document) CreateAction(kind model.ActionKind, uid string) *model.ActionObject {
	return model.NewActionObject(d.StorageID, d.ID, uid, d.TailID(), kind)
}

// Insert adds a to the log.
//
// An action whose id is already present replaces a local copy when the
// incoming one is signed and is ignored otherwise, so folding the same
// remote history twice is harmless. A new local action is appended at the
// tail. A new remote action goes right after its parent; a missing parent
// fails with ErrParentNotFound. The chain is re-validated after every
// remote insertion and a broken chain turns the document to conflict.
func (d *Document) Insert(a *model.ActionObject) error {
	if a.ObjectID != d.ID || a.StorageID != d.StorageID {
		return errclass.ErrInvalidAction.WithMessagef("action %s belongs to %s/%s, not %s/%s",
			a.ID, a.StorageID, a.ObjectID, d.StorageID, d.ID)
	}

	if i := d.Index(a.ID); i >= 0 {
		if d.Actions[i].IsLocal() && a.IsRemote() {
			d.Actions[i] = a
			d.unstage(a.ID)
			d.revalidate()
		}
		return nil
	}

	if a.IsLocal() {
		d.Actions = append(d.Actions, a)
		if a.IsStaging() {
			d.Staged = append(d.Staged, a.ID)
		}
		return nil
	}

	pos := 0
	if a.ParentActionID != nil {
		p := d.Index(*a.ParentActionID)
		if p < 0 {
			return errclass.ErrParentNotFound.WithMessagef("parent %s of action %s not in document %s",
				*a.ParentActionID, a.ID, d.ID)
		}
		pos = p + 1
	}

	d.Actions = append(d.Actions, nil)
	copy(d.Actions[pos+1:], d.Actions[pos:])
	d.Actions[pos] = a
	d.revalidate()
	return nil
}

// revalidate applies the chain check; conflict is sticky.
func (d *Document) revalidate() {
	if d.Status == model.StatusConflict {
		return
	}
	d.Status = d.ChainStatus()
}

// ChainStatus computes the status the current action order implies.
func (d *Document) ChainStatus() model.Status {
	for i, a := range d.Actions {
		var want *model.ActionID
		if i > 0 {
			prev := d.Actions[i-1].ID
			want = &prev
		}
		if !model.SameActionID(a.ParentActionID, want) {
			return model.StatusConflict
		}
	}
	return model.StatusOK
}

// StagingActions returns the actions not yet bundled into a commit, in log order.
func (d *Document) StagingActions() []*model.ActionObject {
	var res []*model.ActionObject
	for _, a := range d.Actions {
		if a.IsLocal() && a.IsStaging() {
			res = append(res, a)
		}
	}
	return res
}

// LocalActions returns the unsigned actions, in log order.
func (d *Document) LocalActions() []*model.ActionObject {
	var res []*model.ActionObject
	for _, a := range d.Actions {
		if a.IsLocal() {
			res = append(res, a)
		}
	}
	return res
}

// ClearCommittedStaging drops staged markers of actions that now belong to a
// commit. Actions themselves are kept.
func (d *Document) ClearCommittedStaging() {
	kept := d.Staged[:0]
	for _, id := range d.Staged {
		if a := d.Get(id); a != nil && a.IsStaging() {
			kept = append(kept, id)
		}
	}
	d.Staged = kept
	if len(d.Staged) == 0 {
		d.Staged = nil
	}
}

func (d *Document) unstage(id model.ActionID) {
	for i, s := range d.Staged {
		if s == id {
			d.Staged = append(d.Staged[:i], d.Staged[i+1:]...)
			break
		}
	}
	if len(d.Staged) == 0 {
		d.Staged = nil
	}
}

// ClearLocalActions drops every action that does not carry a valid remote
// signature, then recomputes the status from what is left. It returns the
// number of dropped actions.
func (d *Document) ClearLocalActions(v model.Verifier) int {
	kept := make([]*model.ActionObject, 0, len(d.Actions))
	for _, a := range d.Actions {
		if a.HasValidSignature(v) {
			kept = append(kept, a)
		}
	}
	dropped := len(d.Actions) - len(kept)
	d.Actions = kept
	d.Staged = nil
	d.Status = d.ChainStatus()
	return dropped
}

// Rebase moves every local action behind the remote tail, re-parenting each
// one onto its new predecessor and restamping it, then recomputes the status.
// It returns the rewritten local actions in their new order.
func (d *Document) Rebase(auth model.ClientAuthority) ([]*model.ActionObject, error) {
	var remote, local []*model.ActionObject
	for _, a := range d.Actions {
		if a.IsRemote() {
			remote = append(remote, a)
		} else {
			local = append(local, a)
		}
	}

	var parent *model.ActionID
	if len(remote) > 0 {
		id := remote[len(remote)-1].ID
		parent = &id
	}
	for _, a := range local {
		if err := a.ResetParentActionID(auth, parent); err != nil {
			return nil, err
		}
		if err := a.ResetDtime(auth); err != nil {
			return nil, err
		}
		id := a.ID
		parent = &id
	}

	d.Actions = append(remote, local...)
	d.Status = d.ChainStatus()
	return local, nil
}
