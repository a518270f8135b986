package engine

import (
	"context"

	"github.com/bit-project/bit/internal/integrity"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
)

// CleanResult reports what Clean discarded.
type CleanResult struct {
	DroppedActions   int              `json:"dropped_actions"`
	DroppedCommits   int              `json:"dropped_commits"`
	ForgottenRecords []model.ObjectID `json:"forgotten_records,omitempty"`
	Pulled           int              `json:"pulled"`
}

// Clean discards all unconfirmed work: the local commit log and every action
// without a valid remote signature. Records that never reached the server are
// forgotten. Projections are rebuilt, then a remote-mode repository pulls.
func (r *Repository) Clean(ctx context.Context) (*CleanResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireClient("clean"); err != nil {
		return nil, err
	}

	locals, err := r.log.LoadLocals()
	if err != nil {
		return nil, err
	}
	res := &CleanResult{DroppedCommits: len(locals)}
	if err := r.log.ClearLocals(); err != nil {
		return nil, err
	}

	docs, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		dropped := d.ClearLocalActions(r.verifier)
		if dropped == 0 {
			continue
		}
		res.DroppedActions += dropped
		if len(d.Actions) == 0 {
			if err := r.docs.Remove(d.ID); err != nil {
				return nil, err
			}
			r.details.Forget(d.ID)
			r.projections.Remove(d.StorageID, d.ID)
			delete(r.projectionErrors, d.ID)
			res.ForgottenRecords = append(res.ForgottenRecords, d.ID)
			continue
		}
		if err := r.docs.Save(d); err != nil {
			return nil, err
		}
	}
	if err := r.repo.SaveDetails(r.details); err != nil {
		return nil, err
	}
	if err := r.rebuildProjections(); err != nil {
		return nil, err
	}

	r.record(model.AuditRecord{
		EventType: model.EventTypeClean,
		Details: map[string]any{
			"dropped_actions":   res.DroppedActions,
			"dropped_commits":   res.DroppedCommits,
			"forgotten_records": len(res.ForgottenRecords),
		},
	})
	r.logger.Info("cleaned local work", map[string]any{
		"dropped_actions": res.DroppedActions,
		"dropped_commits": res.DroppedCommits,
	})

	if r.details.Mode.IsRemote() && r.transport != nil {
		if res.Pulled, err = r.pull(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Rebase resolves a conflicted record by moving its local actions behind the
// remote tail. The rewritten actions replace their copies in the local
// commits so the next push carries the new parents.
func (r *Repository) Rebase(id model.ObjectID) ([]*model.ActionObject, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireClient("rebase"); err != nil {
		return nil, err
	}
	if !r.details.Has(id) {
		return nil, errclass.ErrDocumentNotFound.WithMessagef("record %s", id)
	}
	d, err := r.docs.Load(id)
	if err != nil {
		return nil, err
	}
	if !d.IsConflict() {
		return nil, errclass.ErrInvalidAction.WithMessagef("record %s is not in conflict", id)
	}

	moved, err := d.Rebase(r.clientAuth)
	if err != nil {
		return nil, err
	}
	if err := r.rewriteLocalCommits(moved); err != nil {
		return nil, err
	}
	if err := r.docs.Save(d); err != nil {
		return nil, err
	}
	r.refreshProjection(d)

	r.record(model.AuditRecord{
		EventType: model.EventTypeRebase,
		ObjectID:  id,
		Details:   map[string]any{"moved_actions": len(moved), "status": string(d.Status)},
	})
	r.logger.Info("rebased record", map[string]any{
		"object_id":     string(id),
		"moved_actions": len(moved),
		"status":        string(d.Status),
	})
	if d.IsConflict() {
		return moved, errclass.ErrDocumentConflict.WithMessagef("record %s is still in conflict after rebase", id)
	}
	return moved, nil
}

func (r *Repository) rewriteLocalCommits(moved []*model.ActionObject) error {
	byID := make(map[model.ActionID]*model.ActionObject, len(moved))
	for _, a := range moved {
		byID[a.ID] = a
	}
	locals, err := r.log.LoadLocals()
	if err != nil {
		return err
	}
	changed := false
	for _, c := range locals {
		actions, err := c.Actions()
		if err != nil {
			return err
		}
		hit := false
		for i, a := range actions {
			if m, ok := byID[a.ID]; ok {
				actions[i] = m
				hit = true
			}
		}
		if !hit {
			continue
		}
		if err := c.SetActions(actions); err != nil {
			return err
		}
		changed = true
	}
	if !changed {
		return nil
	}
	return r.log.ReplaceLocals(locals)
}

// Problem is one finding of Verify.
type Problem struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	Detail string `json:"detail"`
}

// VerifyReport is the result of a full integrity check.
type VerifyReport struct {
	RemoteCommits int             `json:"remote_commits"`
	Documents     int             `json:"documents"`
	RemoteActions int             `json:"remote_actions"`
	LocalActions  int             `json:"local_actions"`
	AuditRecords  int             `json:"audit_records"`
	StateHash     model.HashValue `json:"state_hash"`
	Problems      []Problem       `json:"problems,omitempty"`
}

// OK reports whether no problem was found.
func (v *VerifyReport) OK() bool { return len(v.Problems) == 0 }

func (v *VerifyReport) add(kind, id, detail string) {
	v.Problems = append(v.Problems, Problem{Kind: kind, ID: id, Detail: detail})
}

// Verify re-checks every remote commit signature, the ancestry of the remote
// log, every signed action and each document's chain, and the audit trail.
// The state hash covers the confirmed state only, so two replicas in sync
// report the same hash.
func (r *Repository) Verify() (*VerifyReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := &VerifyReport{}
	remotes, err := r.log.LoadRemotes()
	if err != nil {
		return nil, err
	}
	report.RemoteCommits = len(remotes)
	var prev *model.CommitID
	for _, c := range remotes {
		if !c.HasValidRemoteSignature(r.verifier) {
			report.add("commit_signature", string(c.ID), "remote signature does not verify")
		}
		if !model.SameCommitID(c.AncestorID, prev) {
			report.add("remote_chain", string(c.ID), "ancestor "+model.OptString(c.AncestorID)+" does not match "+model.OptString(prev))
		}
		id := c.ID
		prev = &id
	}
	if !model.SameCommitID(prev, r.log.LatestRemote()) {
		report.add("commit_index", model.OptString(r.log.LatestRemote()), "remote head does not match the last remote commit")
	}

	var states []integrity.DocumentState
	for _, id := range r.details.ObjectIDs() {
		d, err := r.docs.Load(id)
		if err != nil {
			report.add("missing_document", string(id), err.Error())
			continue
		}
		report.Documents++
		for _, a := range d.Actions {
			if a.IsLocal() {
				report.LocalActions++
				continue
			}
			report.RemoteActions++
			if !a.HasValidSignature(r.verifier) {
				report.add("action_signature", string(a.ID), "remote signature does not verify")
			}
		}
		if d.IsConflict() {
			report.add("conflict", string(id), "record is in conflict; rebase or clean")
		} else if d.ChainStatus() != model.StatusOK {
			report.add("chain", string(id), "action chain is broken but status is ok")
		}
		state := integrity.DocumentState{ObjectID: d.ID, StorageID: d.StorageID, RemoteCount: d.RemoteCount()}
		if tail := d.RemoteTail(); tail != nil {
			state.RemoteTail = tail.ID
		}
		states = append(states, state)
	}
	report.StateHash = integrity.ComputeStateHash(r.log.LatestRemote(), states)

	for _, id := range sortedIDs(r.projectionErrors) {
		report.add("projection", string(id), r.projectionErrors[id])
	}

	n, err := r.audit.Verify()
	report.AuditRecords = n
	if err != nil {
		report.add("audit_chain", r.audit.Path(), err.Error())
	}

	for _, p := range report.Problems {
		if p.Kind != "conflict" {
			r.metrics.RecordIntegrityFailure(p.Kind)
		}
	}
	if !report.OK() {
		r.logger.Warn("verify found problems", map[string]any{"problems": len(report.Problems)})
	}
	return report, nil
}

// Reindex drops every projection, the cache included, and replays all
// documents from scratch.
func (r *Repository) Reindex() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuildProjections()
}

func (r *Repository) rebuildProjections() error {
	docs, err := r.loadAll()
	if err != nil {
		return err
	}
	for _, id := range r.projections.StorageIDs() {
		x, err := r.projections.Lookup(id)
		if err != nil {
			return err
		}
		x.Reset()
	}
	clear(r.projectionErrors)
	for _, d := range docs {
		r.refreshProjection(d)
	}
	return nil
}
