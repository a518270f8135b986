package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bit-project/bit/internal/document"
	"github.com/bit-project/bit/internal/transport"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/bit-project/bit/pkg/pathutil"
	"github.com/bit-project/bit/pkg/webhook"
)

// MergePush is the server side of push. The commit must extend the remote
// head; every action must be unsigned, belong to the commit and extend the
// current tail of its document. Actions and then the commit are signed, the
// commit is appended to the remote log and the documents are written. Nothing
// is persisted unless the whole commit validates.
//
// The remote log append is the commit point. When a document write fails
// after it, the next merge and the next Open first bring the documents up to
// the remote log.
func (r *Repository) MergePush(ctx context.Context, c *model.Commit) (*model.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireServer("merge"); err != nil {
		return nil, err
	}
	if r.unapplied {
		if _, err := r.applyRemoteLog(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	signed, docs, err := r.validateAndSign(c)
	r.metrics.RecordMerge(pushOutcome(err), time.Since(start))
	if err != nil {
		r.mergeRejected(c, err)
		return nil, err
	}

	if err := r.log.AddRemoteCommit(signed); err != nil {
		return nil, err
	}
	r.remoteCommits++
	r.metrics.SetRemoteCommits(r.remoteCommits)
	if err := r.saveMerged(docs); err != nil {
		r.unapplied = true
		r.logger.ErrorErr("merged commit not fully applied", err, map[string]any{"commit_id": string(signed.ID)})
		return nil, err
	}

	r.record(model.AuditRecord{
		EventType: model.EventTypeMerge,
		UID:       signed.UID,
		CommitID:  signed.ID,
		Details:   map[string]any{"actions": len(signed.SerializedActions), "documents": len(docs)},
	})
	r.notify(webhook.Event{
		Event:    webhook.EventCommitAccepted,
		UID:      signed.UID,
		CommitID: string(signed.ID),
		Metadata: map[string]any{"actions": len(signed.SerializedActions)},
	})
	r.logger.Info("merged push", map[string]any{
		"commit_id": string(signed.ID),
		"uid":       signed.UID,
		"actions":   len(signed.SerializedActions),
	})
	return signed, nil
}

func (r *Repository) saveMerged(docs []*document.Document) error {
	detailsChanged := false
	for _, d := range docs {
		if err := r.docs.Save(d); err != nil {
			return err
		}
		if !r.details.Has(d.ID) {
			r.details.Add(d.ID, d.StorageID)
			detailsChanged = true
		}
		r.refreshProjection(d)
	}
	if detailsChanged {
		return r.repo.SaveDetails(r.details)
	}
	return nil
}

// applyRemoteLog inserts every action of the remote log that is missing from
// its document, registers every document in the repository details and
// returns the number of inserted actions. Inserting is idempotent, so it is
// safe on a consistent repository.
func (r *Repository) applyRemoteLog() (int, error) {
	remotes, err := r.log.LoadRemotes()
	if err != nil {
		return 0, err
	}
	docs := make(map[model.ObjectID]*document.Document)
	known := make(map[model.ActionID]bool)
	var touched []*document.Document
	dirty := make(map[model.ObjectID]bool)
	inserted := 0
	for _, c := range remotes {
		actions, err := c.Actions()
		if err != nil {
			return inserted, fmt.Errorf("remote commit %s: %w", c.ID, err)
		}
		for _, a := range actions {
			d, ok := docs[a.ObjectID]
			if !ok {
				if d, err = r.loadForReplay(a); err != nil {
					return inserted, err
				}
				docs[a.ObjectID] = d
				touched = append(touched, d)
				for _, have := range d.Actions {
					known[have.ID] = true
				}
			}
			if known[a.ID] {
				continue
			}
			if err := d.Insert(a); err != nil {
				return inserted, fmt.Errorf("replay action %s of commit %s: %w", a.ID, c.ID, err)
			}
			known[a.ID] = true
			dirty[d.ID] = true
			inserted++
		}
	}

	for _, d := range touched {
		if !dirty[d.ID] {
			continue
		}
		if err := r.docs.Save(d); err != nil {
			return inserted, err
		}
	}
	added := 0
	for _, d := range touched {
		if !r.details.Has(d.ID) {
			r.details.Add(d.ID, d.StorageID)
			added++
		}
	}
	// The in-memory details may be ahead of the file after a failed merge.
	if inserted > 0 || added > 0 || r.unapplied {
		if err := r.repo.SaveDetails(r.details); err != nil {
			return inserted, err
		}
	}
	for _, d := range touched {
		if dirty[d.ID] {
			r.refreshProjection(d)
		}
	}
	r.unapplied = false
	if inserted > 0 {
		r.logger.Warn("applied remote log to documents", map[string]any{"actions": inserted})
	}
	return inserted, nil
}

func (r *Repository) loadForReplay(a *model.ActionObject) (*document.Document, error) {
	if r.docs.Exists(a.ObjectID) {
		return r.docs.Load(a.ObjectID)
	}
	if !a.Action.IsCreate() {
		return nil, errclass.ErrPatchWithoutDocument.WithMessagef("remote log patches %s before creating it", a.ObjectID)
	}
	return document.New(a.ObjectID, a.StorageID), nil
}

func (r *Repository) validateAndSign(c *model.Commit) (*model.Commit, []*document.Document, error) {
	if c.IsRemote() {
		return nil, nil, errclass.ErrAlreadySigned.WithMessagef("commit %s is already signed", c.ID)
	}
	if !model.SameCommitID(c.AncestorID, r.log.LatestRemote()) {
		return nil, nil, errclass.ErrAncestorMismatch.WithMessagef("commit %s extends %s, head is %s; pull first",
			c.ID, model.OptString(c.AncestorID), model.OptString(r.log.LatestRemote()))
	}
	actions, err := c.Actions()
	if err != nil {
		return nil, nil, errclass.ErrInvalidAction.WithMessage(err.Error())
	}
	if len(actions) == 0 {
		return nil, nil, errclass.ErrInvalidAction.WithMessagef("commit %s carries no actions", c.ID)
	}

	touched := make(map[model.ObjectID]*document.Document)
	var order []*document.Document
	for _, a := range actions {
		if a.IsRemote() {
			return nil, nil, errclass.ErrAlreadySigned.WithMessagef("action %s is already signed", a.ID)
		}
		if a.CommitID == nil || *a.CommitID != c.ID {
			return nil, nil, errclass.ErrInvalidAction.WithMessagef("action %s does not belong to commit %s", a.ID, c.ID)
		}
		if err := pathutil.ValidateStorageID(a.StorageID); err != nil {
			return nil, nil, err
		}
		if err := pathutil.ValidateObjectID(string(a.ObjectID)); err != nil {
			return nil, nil, err
		}

		d, ok := touched[a.ObjectID]
		if !ok && r.details.Has(a.ObjectID) {
			if d, err = r.docs.Load(a.ObjectID); err != nil {
				return nil, nil, err
			}
		}
		switch {
		case a.Action.IsCreate():
			if d != nil {
				return nil, nil, errclass.ErrDocumentExists.WithMessagef("record %s already exists", a.ObjectID)
			}
			if a.ParentActionID != nil {
				return nil, nil, errclass.ErrInvalidAction.WithMessagef("create action %s has a parent", a.ID)
			}
			d = document.New(a.ObjectID, a.StorageID)
		case d == nil:
			return nil, nil, errclass.ErrPatchWithoutDocument.WithMessagef("record %s", a.ObjectID)
		case !model.SameActionID(a.ParentActionID, d.TailID()):
			return nil, nil, errclass.ErrDocumentConflict.WithMessagef("action %s extends %s, tail of %s is %s; pull and rebase",
				a.ID, model.OptString(a.ParentActionID), a.ObjectID, model.OptString(d.TailID()))
		}
		if !ok {
			touched[a.ObjectID] = d
			order = append(order, d)
		}

		if err := a.SignRemote(r.serverAuth); err != nil {
			return nil, nil, err
		}
		if err := d.Insert(a); err != nil {
			return nil, nil, err
		}
	}

	if err := c.SetActions(actions); err != nil {
		return nil, nil, err
	}
	if err := c.AddRemoteSignature(r.serverAuth); err != nil {
		return nil, nil, err
	}
	return c, order, nil
}

func (r *Repository) mergeRejected(c *model.Commit, err error) {
	r.logger.WarnErr("push rejected", err, map[string]any{
		"commit_id": string(c.ID),
		"uid":       c.UID,
		"kind":      string(errclass.KindOf(err)),
	})
	r.record(model.AuditRecord{
		EventType: model.EventTypePushRejected,
		UID:       c.UID,
		CommitID:  c.ID,
		Details:   map[string]any{"code": errclass.Code(err)},
	})
	r.notify(webhook.Event{
		Event:    webhook.EventPushRejected,
		UID:      c.UID,
		CommitID: string(c.ID),
		Error:    err.Error(),
	})
}

// ServePull streams the remote commits after after to fn. The commits are
// read under the lock and streamed without it, so a slow reader does not
// hold up pushes.
func (r *Repository) ServePull(ctx context.Context, after *model.CommitID, fn func(*model.Commit) error) error {
	r.mu.Lock()
	if err := r.requireServer("serve pull"); err != nil {
		r.mu.Unlock()
		return err
	}
	commits, err := r.log.LoadRemotesAfter(after)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			return errclass.ErrTransport.WithMessagef("pull cancelled: %v", err)
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// Head returns the latest remote commit id.
func (r *Repository) Head() *model.CommitID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.LatestRemote()
}

// Handler returns the HTTP binding of this server.
func (r *Repository) Handler() http.Handler {
	opts := transport.ServerOptions{
		Secret:         r.cfg.Auth.Secret,
		AllowedOrigins: r.cfg.Transport.AllowedOrigins,
	}
	if r.cfg.Metrics.Enabled {
		opts.Metrics = r.metrics.Handler()
	}
	return transport.NewHandler(r, opts)
}

// Serve answers pull and push requests on the bind address until ctx is done.
func (r *Repository) Serve(ctx context.Context) error {
	if err := r.requireServer("serve"); err != nil {
		return err
	}
	done := make(chan struct{})
	defer close(done)
	go r.renewLock(done)

	remotes, err := r.Log(false)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.remoteCommits = len(remotes)
	r.metrics.SetRemoteCommits(r.remoteCommits)
	r.mu.Unlock()

	addr := r.details.Mode.BindAddress
	r.logger.Info("serving", map[string]any{"bind_address": addr, "head": model.OptString(r.Head())})
	return transport.Serve(ctx, addr, r.Handler(), r.ready)
}
