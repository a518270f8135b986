package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/jsonutil"
)

// Commit is an ancestry-linked batch of serialized ActionObjects. It stays
// local until the server signs it; once signed it is immutable.
type Commit struct {
	ID                CommitID          `json:"id"`
	UID               string            `json:"uid"`
	Dtime             time.Time         `json:"dtime"`
	Comment           string            `json:"comment"`
	AncestorID        *CommitID         `json:"ancestor_id"`
	SerializedActions []json.RawMessage `json:"serialized_actions"`
	RemoteSignature   *string           `json:"remote_signature"`
}

// NewCommit returns an empty batch with no ancestor yet.
func NewCommit(uid, comment string) *Commit {
	return &Commit{
		ID:                NewCommitID(),
		UID:               uid,
		Dtime:             now(),
		Comment:           comment,
		SerializedActions: []json.RawMessage{},
	}
}

func (c *Commit) IsRemote() bool { return c.RemoteSignature != nil }
func (c *Commit) IsLocal() bool  { return !c.IsRemote() }

// AddActionObject appends the encoded action. Signed commits are write-protected.
func (c *Commit) AddActionObject(a *ActionObject) error {
	if c.IsRemote() {
		return errclass.ErrAlreadySigned.WithMessagef("commit %s", c.ID)
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode action %s: %w", a.ID, err)
	}
	c.SerializedActions = append(c.SerializedActions, raw)
	return nil
}

// Actions decodes the batch in order.
func (c *Commit) Actions() ([]*ActionObject, error) {
	res := make([]*ActionObject, 0, len(c.SerializedActions))
	for i, raw := range c.SerializedActions {
		var a ActionObject
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decode action %d of commit %s: %w", i, c.ID, err)
		}
		res = append(res, &a)
	}
	return res, nil
}

// SetActions replaces the batch. Used by the server after signing every
// action and by the client when rebasing unsigned commits.
func (c *Commit) SetActions(actions []*ActionObject) error {
	if c.IsRemote() {
		return errclass.ErrAlreadySigned.WithMessagef("commit %s", c.ID)
	}
	c.SerializedActions = make([]json.RawMessage, 0, len(actions))
	for _, a := range actions {
		if err := c.AddActionObject(a); err != nil {
			return err
		}
	}
	return nil
}

// SetAncestor re-stamps the ancestor of an unsigned commit.
func (c *Commit) SetAncestor(id *CommitID) error {
	if c.IsRemote() {
		return errclass.ErrAlreadySigned.WithMessagef("commit %s", c.ID)
	}
	if id != nil {
		id = ptr(*id)
	}
	c.AncestorID = id
	return nil
}

// SignaturePayload returns the canonical bytes a commit signature covers.
func (c *Commit) SignaturePayload() ([]byte, error) {
	cp := *c
	cp.RemoteSignature = nil
	return jsonutil.CanonicalMarshal(&cp)
}

// AddRemoteSignature signs the commit. It fails if already signed.
func (c *Commit) AddRemoteSignature(auth ServerAuthority) error {
	if c.IsRemote() {
		return errclass.ErrAlreadySigned.WithMessagef("commit %s already has a remote signature", c.ID)
	}
	payload, err := c.SignaturePayload()
	if err != nil {
		return err
	}
	sig, err := auth.sign(payload)
	if err != nil {
		return err
	}
	c.RemoteSignature = ptr(sig)
	return nil
}

// HasValidRemoteSignature recomputes the signature over a cleared copy.
func (c *Commit) HasValidRemoteSignature(v Verifier) bool {
	if c.RemoteSignature == nil || v == nil {
		return false
	}
	payload, err := c.SignaturePayload()
	if err != nil {
		return false
	}
	return v.Verify(payload, *c.RemoteSignature)
}

func (c *Commit) String() string {
	sig := "-"
	if c.RemoteSignature != nil {
		sig = ShortID(*c.RemoteSignature)
	}
	return fmt.Sprintf("id: %s\nancestor_id: %s\naction_count: %d\nsignature: %s",
		c.ID, OptString(c.AncestorID), len(c.SerializedActions), sig)
}

// CommitIndex holds the only mutable cursors of the commit log.
type CommitIndex struct {
	LatestLocalCommitID  *CommitID `json:"latest_local_commit_id"`
	LatestRemoteCommitID *CommitID `json:"latest_remote_commit_id"`
}
