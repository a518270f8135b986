package model_test

import (
	"encoding/json"
	"testing"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommit_Empty(t *testing.T) {
	c := model.NewCommit("alice", "first")
	assert.NotEmpty(t, c.ID)
	assert.Nil(t, c.AncestorID)
	assert.Empty(t, c.SerializedActions)
	assert.True(t, c.IsLocal())
}

func TestCommit_AddAndDecodeActions(t *testing.T) {
	c := model.NewCommit("alice", "batch")
	a1 := newAction(t, nil)
	a2 := newAction(t, &a1.ID)
	require.NoError(t, c.AddActionObject(a1))
	require.NoError(t, c.AddActionObject(a2))

	actions, err := c.Actions()
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, a1.ID, actions[0].ID)
	assert.Equal(t, a1.ID, *actions[1].ParentActionID)
}

func TestCommit_ActionsDecodeError(t *testing.T) {
	c := model.NewCommit("alice", "")
	c.SerializedActions = append(c.SerializedActions, json.RawMessage(`"nope"`))
	_, err := c.Actions()
	assert.Error(t, err)
}

func TestCommit_SignOnce(t *testing.T) {
	auth := serverAuth(t)
	c := model.NewCommit("alice", "batch")
	require.NoError(t, c.AddActionObject(newAction(t, nil)))

	require.NoError(t, c.AddRemoteSignature(auth))
	assert.True(t, c.IsRemote())
	assert.True(t, c.HasValidRemoteSignature(auth.Verifier()))

	assert.ErrorIs(t, c.AddRemoteSignature(auth), errclass.ErrAlreadySigned)
	assert.ErrorIs(t, c.AddActionObject(newAction(t, nil)), errclass.ErrAlreadySigned)
	assert.ErrorIs(t, c.SetAncestor(nil), errclass.ErrAlreadySigned)
	assert.ErrorIs(t, c.SetActions(nil), errclass.ErrAlreadySigned)
}

func TestCommit_TamperingInvalidatesSignature(t *testing.T) {
	auth := serverAuth(t)
	c := model.NewCommit("alice", "batch")
	require.NoError(t, c.AddActionObject(newAction(t, nil)))
	require.NoError(t, c.AddRemoteSignature(auth))

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded model.Commit
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.HasValidRemoteSignature(auth.Verifier()))

	decoded.Comment = "rewritten"
	assert.False(t, decoded.HasValidRemoteSignature(auth.Verifier()))

	require.NoError(t, json.Unmarshal(data, &decoded))
	ancestor := model.CommitID("forged")
	decoded.AncestorID = &ancestor
	assert.False(t, decoded.HasValidRemoteSignature(auth.Verifier()))
}

func TestCommit_SetAncestorCopies(t *testing.T) {
	c := model.NewCommit("alice", "")
	id := model.CommitID("a")
	require.NoError(t, c.SetAncestor(&id))
	id = "b"
	assert.Equal(t, model.CommitID("a"), *c.AncestorID)
	assert.Contains(t, c.String(), "ancestor_id: a")
}

func TestCommit_SetActionsReplacesBatch(t *testing.T) {
	c := model.NewCommit("alice", "")
	require.NoError(t, c.AddActionObject(newAction(t, nil)))
	a := newAction(t, nil)
	require.NoError(t, c.SetActions([]*model.ActionObject{a}))
	actions, err := c.Actions()
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, a.ID, actions[0].ID)
}
