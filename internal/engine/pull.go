package engine

import (
	"context"
	"time"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/bit-project/bit/pkg/progress"
	"github.com/bit-project/bit/pkg/webhook"
)

// ProceedPull fetches every remote commit after the local remote head and
// folds it in. Each commit is applied completely before the head advances,
// so an interrupted pull resumes where it stopped. Transport failures are
// retried up to the configured count and then returned as E_TRANSPORT.
func (r *Repository) ProceedPull(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireRemote("pull"); err != nil {
		return 0, err
	}
	return r.pull(ctx)
}

func (r *Repository) pull(ctx context.Context) (int, error) {
	start := time.Now()
	total := 0
	var err error
	for attempt := 0; ; attempt++ {
		var n int
		n, err = r.pullOnce(ctx)
		total += n
		if err == nil || errclass.KindOf(err) != errclass.KindTransport || attempt >= r.cfg.Transport.Retries {
			break
		}
		r.logger.WarnErr("pull interrupted, retrying", err, map[string]any{
			"attempt":         attempt + 1,
			"after_commit_id": model.OptString(r.log.LatestRemote()),
		})
		select {
		case <-ctx.Done():
			return total, errclass.ErrTransport.WithMessagef("pull cancelled: %v", ctx.Err())
		case <-time.After(backoff(attempt)):
		}
	}
	r.metrics.RecordPull(total, time.Since(start), err)
	if err != nil {
		return total, err
	}

	if total > 0 {
		head := r.log.LatestRemote()
		r.record(model.AuditRecord{
			EventType: model.EventTypePull,
			CommitID:  *head,
			Details:   map[string]any{"commits": total},
		})
		r.notify(webhook.Event{
			Event:    webhook.EventPullCompleted,
			CommitID: string(*head),
			Metadata: map[string]any{"commits": total},
		})
	}
	r.logger.Info("pulled", map[string]any{
		"commits":          total,
		"latest_commit_id": model.OptString(r.log.LatestRemote()),
	})
	return total, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(100<<attempt) * time.Millisecond
}

func (r *Repository) pullOnce(ctx context.Context) (int, error) {
	p := progress.New("pull", 0, r.progress)
	n := 0
	err := r.transport.Pull(ctx, r.log.LatestRemote(), func(c *model.Commit) error {
		if err := r.applyRemoteCommit(c); err != nil {
			return err
		}
		n++
		p.Step(model.ShortID(c.ID))
		return nil
	})
	return n, err
}

// applyRemoteCommit checks a commit received from the server and folds its
// actions into the documents, then advances the remote head.
func (r *Repository) applyRemoteCommit(c *model.Commit) error {
	if !c.HasValidRemoteSignature(r.verifier) {
		return r.integrityFailed("commit_signature", c.ID,
			errclass.ErrSignatureInvalid.WithMessagef("commit %s", c.ID))
	}
	if !model.SameCommitID(c.AncestorID, r.log.LatestRemote()) {
		return r.integrityFailed("remote_chain", c.ID,
			errclass.ErrRemoteChainBroken.WithMessagef("commit %s extends %s, local remote head is %s",
				c.ID, model.OptString(c.AncestorID), model.OptString(r.log.LatestRemote())))
	}
	actions, err := c.Actions()
	if err != nil {
		return r.integrityFailed("commit_payload", c.ID, errclass.ErrSignatureInvalid.WithMessage(err.Error()))
	}
	for _, a := range actions {
		if !a.HasValidSignature(r.verifier) {
			return r.integrityFailed("action_signature", c.ID,
				errclass.ErrSignatureInvalid.WithMessagef("action %s of commit %s", a.ID, c.ID))
		}
	}

	// Inserts are idempotent, so a commit interrupted here is re-applied
	// whole on the next pull.
	for _, a := range actions {
		if _, err := r.addAction(a); err != nil {
			return err
		}
	}
	return r.log.AddRemoteCommit(c)
}
