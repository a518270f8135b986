package engine

import (
	"errors"

	"github.com/bit-project/bit/internal/document"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/bit-project/bit/pkg/webhook"
)

// record appends an audit record. Audit failures are logged, not returned:
// the operation they describe has already happened.
func (r *Repository) record(rec model.AuditRecord) {
	if rec.UID == "" {
		rec.UID = r.cfg.User
	}
	if err := r.audit.Append(rec); err != nil {
		r.logger.WarnErr("append audit record", err, map[string]any{"event_type": string(rec.EventType)})
	}
}

func (r *Repository) notify(ev webhook.Event) {
	if r.hooks == nil {
		return
	}
	ev.RepoID = r.repo.RepoID
	if ev.UID == "" {
		ev.UID = r.cfg.User
	}
	r.hooks.Notify(ev)
}

// conflictDetected surfaces a document that just turned to conflict.
func (r *Repository) conflictDetected(d *document.Document, cause *model.ActionObject) {
	r.metrics.RecordConflict(d.StorageID)
	r.logger.Warn("document conflict", map[string]any{
		"object_id":  string(d.ID),
		"storage_id": d.StorageID,
		"action_id":  string(cause.ID),
	})
	r.record(model.AuditRecord{
		EventType: model.EventTypeConflict,
		ObjectID:  d.ID,
		Details:   map[string]any{"storage_id": d.StorageID, "action_id": string(cause.ID)},
	})
	r.notify(webhook.Event{
		Event:     webhook.EventDocumentConflict,
		ObjectID:  string(d.ID),
		StorageID: d.StorageID,
		Metadata:  map[string]any{"action_id": string(cause.ID)},
	})
}

// integrityFailed reports a rejected object and returns err.
func (r *Repository) integrityFailed(kind string, commitID model.CommitID, err error) error {
	r.metrics.RecordIntegrityFailure(kind)
	r.logger.ErrorErr("integrity check failed", err, map[string]any{"kind": kind, "commit_id": string(commitID)})
	r.record(model.AuditRecord{
		EventType: model.EventTypeIntegrityFail,
		CommitID:  commitID,
		Details:   map[string]any{"kind": kind, "error": err.Error()},
	})
	r.notify(webhook.Event{
		Event:    webhook.EventIntegrityFailed,
		CommitID: string(commitID),
		Error:    err.Error(),
		Metadata: map[string]any{"kind": kind},
	})
	return err
}

// pushOutcome labels a push or merge result for metrics.
func pushOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errclass.KindOf(err) == errclass.KindStale:
		return "stale"
	case errclass.KindOf(err) == errclass.KindConflict:
		return "conflict"
	case errors.Is(err, errclass.ErrSignatureInvalid):
		return "rejected"
	default:
		return "error"
	}
}
