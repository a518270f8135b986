package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/jsonutil"
)

// ActionType tags an ActionKind.
type ActionType string

const (
	// ActionCreate initializes a new logical record.
	ActionCreate ActionType = "create"
	// ActionPatch mutates an existing logical record.
	ActionPatch ActionType = "patch"
)

// ActionKind is the tagged payload of an ActionObject. The payload stays an
// opaque JSON document inside the sync engine; only reducers decode it.
type ActionKind struct {
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Create wraps payload in a Create kind.
func Create(payload any) (ActionKind, error) {
	return newKind(ActionCreate, payload)
}

// Patch wraps payload in a Patch kind.
func Patch(payload any) (ActionKind, error) {
	return newKind(ActionPatch, payload)
}

func newKind(t ActionType, payload any) (ActionKind, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ActionKind{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return ActionKind{Type: t, Payload: raw}, nil
}

func (k ActionKind) IsCreate() bool { return k.Type == ActionCreate }
func (k ActionKind) IsPatch() bool  { return k.Type == ActionPatch }

// Decode unmarshals the payload into v.
func (k ActionKind) Decode(v any) error {
	if err := json.Unmarshal(k.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", k.Type, err)
	}
	return nil
}

// ActionObject is one immutable recorded change to a logical record.
//
// After creation only two one-way transitions are allowed: CommitID from nil
// to a commit (MarkCommitted) and RemoteSignature from nil to a signature
// (SignRemote, server authority only).
type ActionObject struct {
	ID              ActionID   `json:"id"`
	StorageID       string     `json:"storage_id"`
	ObjectID        ObjectID   `json:"object_id"`
	UID             string     `json:"uid"`
	Dtime           time.Time  `json:"dtime"`
	CommitID        *CommitID  `json:"commit_id"`
	ParentActionID  *ActionID  `json:"parent_action_id"`
	Action          ActionKind `json:"action"`
	RemoteSignature *string    `json:"remote_signature"`
}

// NewActionObject builds a local, staging ActionObject.
func NewActionObject(storageID string, objectID ObjectID, uid string, parent *ActionID, kind ActionKind) *ActionObject {
	return &ActionObject{
		ID:             NewActionID(),
		StorageID:      storageID,
		ObjectID:       objectID,
		UID:            uid,
		Dtime:          now(),
		ParentActionID: parent,
		Action:         kind,
	}
}

// IsLocal reports whether the action is still unconfirmed by the server.
func (a *ActionObject) IsLocal() bool { return a.RemoteSignature == nil }

// IsRemote reports whether the action carries a server signature.
func (a *ActionObject) IsRemote() bool { return !a.IsLocal() }

// IsStaging reports whether the action is not yet part of a Commit.
func (a *ActionObject) IsStaging() bool { return a.CommitID == nil }

// MarkCommitted binds a staging action to a commit. It fails once committed.
func (a *ActionObject) MarkCommitted(id CommitID) error {
	if !a.IsStaging() {
		return errclass.ErrInvalidAction.WithMessagef("action %s already belongs to commit %s", a.ID, *a.CommitID)
	}
	a.CommitID = ptr(id)
	return nil
}

// Clone returns a deep copy.
func (a *ActionObject) Clone() *ActionObject {
	c := *a
	if a.CommitID != nil {
		c.CommitID = ptr(*a.CommitID)
	}
	if a.ParentActionID != nil {
		c.ParentActionID = ptr(*a.ParentActionID)
	}
	if a.RemoteSignature != nil {
		c.RemoteSignature = ptr(*a.RemoteSignature)
	}
	c.Action.Payload = append(json.RawMessage(nil), a.Action.Payload...)
	return &c
}

// SignaturePayload returns the canonical bytes a signature covers: the whole
// object with RemoteSignature cleared.
func (a *ActionObject) SignaturePayload() ([]byte, error) {
	c := a.Clone()
	c.RemoteSignature = nil
	return jsonutil.CanonicalMarshal(c)
}

// SignRemote signs the action. A signed action cannot be signed again.
func (a *ActionObject) SignRemote(auth ServerAuthority) error {
	if a.IsRemote() {
		return errclass.ErrAlreadySigned.WithMessagef("action %s", a.ID)
	}
	payload, err := a.SignaturePayload()
	if err != nil {
		return err
	}
	sig, err := auth.sign(payload)
	if err != nil {
		return err
	}
	a.RemoteSignature = ptr(sig)
	return nil
}

// HasValidSignature recomputes the signature payload and checks it. A missing
// or mismatching signature yields false; callers must drop such actions.
func (a *ActionObject) HasValidSignature(v Verifier) bool {
	if a.RemoteSignature == nil || v == nil {
		return false
	}
	payload, err := a.SignaturePayload()
	if err != nil {
		return false
	}
	return v.Verify(payload, *a.RemoteSignature)
}

// ResetParentActionID re-targets an unsigned action onto a newly learned parent.
func (a *ActionObject) ResetParentActionID(auth ClientAuthority, parent *ActionID) error {
	if err := a.checkRewritable(auth); err != nil {
		return err
	}
	if parent != nil {
		parent = ptr(*parent)
	}
	a.ParentActionID = parent
	return nil
}

// ResetDtime restamps an unsigned action with the current time.
func (a *ActionObject) ResetDtime(auth ClientAuthority) error {
	if err := a.checkRewritable(auth); err != nil {
		return err
	}
	a.Dtime = now()
	return nil
}

func (a *ActionObject) checkRewritable(auth ClientAuthority) error {
	if err := auth.check(); err != nil {
		return err
	}
	if a.IsRemote() {
		return errclass.ErrAlreadySigned.WithMessagef("action %s is signed and immutable", a.ID)
	}
	return nil
}

// Marker returns the one-letter history marker: S staging, L local, R remote.
func (a *ActionObject) Marker() string {
	switch {
	case a.IsRemote():
		return "R"
	case a.IsStaging():
		return "S"
	default:
		return "L"
	}
}

var now = func() time.Time {
	return time.Now().UTC().Round(0)
}
