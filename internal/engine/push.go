package engine

import (
	"context"
	"time"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/bit-project/bit/pkg/progress"
	"github.com/bit-project/bit/pkg/webhook"
)

// ProceedPush pulls, then sends every local commit in order. Each accepted
// commit is appended to the remote log, its signed actions replace the local
// copies and it leaves the local log. A trailing pull reconciles whatever
// arrived meanwhile. A stale ancestor surfaces as E_ANCESTOR_MISMATCH.
func (r *Repository) ProceedPush(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireRemote("push"); err != nil {
		return 0, err
	}

	if _, err := r.pull(ctx); err != nil {
		return 0, err
	}
	locals, err := r.log.LoadLocals()
	if err != nil {
		return 0, err
	}
	remotes, err := r.log.LoadRemotes()
	if err != nil {
		return 0, err
	}
	accepted := make(map[model.CommitID]bool, len(remotes))
	for _, c := range remotes {
		accepted[c.ID] = true
	}

	p := progress.New("push", len(locals), r.progress)
	pushed := 0
	for _, c := range locals {
		if accepted[c.ID] {
			// Accepted before an interruption: only the local entry is left.
			if err := r.log.RemoveLocal(c.ID); err != nil {
				return pushed, err
			}
			p.Step(model.ShortID(c.ID))
			continue
		}
		if err := r.pushOne(ctx, c); err != nil {
			return pushed, err
		}
		pushed++
		p.Step(model.ShortID(c.ID))
	}

	if _, err := r.pull(ctx); err != nil {
		return pushed, err
	}
	return pushed, nil
}

func (r *Repository) pushOne(ctx context.Context, c *model.Commit) error {
	start := time.Now()
	if err := c.SetAncestor(r.log.LatestRemote()); err != nil {
		return err
	}

	signed, err := r.transport.Push(ctx, c)
	if err != nil {
		r.metrics.RecordPush(pushOutcome(err), time.Since(start))
		r.pushRejected(c, err)
		return err
	}
	if signed.ID != c.ID || !model.SameCommitID(signed.AncestorID, c.AncestorID) {
		return r.integrityFailed("push_reply", c.ID,
			errclass.ErrSignatureInvalid.WithMessagef("server answered push of %s with commit %s", c.ID, signed.ID))
	}
	if err := r.applyRemoteCommit(signed); err != nil {
		r.metrics.RecordPush(pushOutcome(err), time.Since(start))
		return err
	}
	if err := r.log.RemoveLocal(c.ID); err != nil {
		return err
	}

	r.metrics.RecordPush("accepted", time.Since(start))
	r.record(model.AuditRecord{
		EventType: model.EventTypePush,
		CommitID:  c.ID,
		Details:   map[string]any{"actions": len(c.SerializedActions)},
	})
	r.logger.Info("pushed", map[string]any{
		"commit_id":   string(c.ID),
		"ancestor_id": model.OptString(c.AncestorID),
	})
	return nil
}

func (r *Repository) pushRejected(c *model.Commit, err error) {
	fields := map[string]any{"commit_id": string(c.ID), "kind": string(errclass.KindOf(err))}
	if errclass.KindOf(err) == errclass.KindTransport {
		r.logger.WarnErr("push failed", err, fields)
		return
	}
	r.logger.WarnErr("push rejected", err, fields)
	r.record(model.AuditRecord{
		EventType: model.EventTypePushRejected,
		CommitID:  c.ID,
		Details:   map[string]any{"code": errclass.Code(err)},
	})
	r.notify(webhook.Event{
		Event:    webhook.EventPushRejected,
		CommitID: string(c.ID),
		Error:    err.Error(),
	})
}
