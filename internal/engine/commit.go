package engine

import (
	"time"

	"github.com/bit-project/bit/internal/document"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/bit-project/bit/pkg/template"
)

// Commit bundles every staged action of every document into one local
// commit. An empty comment is expanded from the commit message template.
func (r *Repository) Commit(comment string) (*model.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireClient("commit"); err != nil {
		return nil, err
	}

	docs, err := r.loadAll()
	if err != nil {
		return nil, err
	}
	var touched []*document.Document
	var staged []*model.ActionObject
	for _, d := range docs {
		actions := d.StagingActions()
		if len(actions) == 0 {
			continue
		}
		touched = append(touched, d)
		staged = append(staged, actions...)
	}
	if len(staged) == 0 {
		return nil, errclass.ErrNothingToCommit.WithMessage("no staged actions")
	}

	if comment == "" {
		comment = template.CommitMessage(r.cfg.CommitMessage, r.cfg.User, len(staged), time.Now())
	}
	c := model.NewCommit(r.cfg.User, comment)
	for _, a := range staged {
		if err := a.MarkCommitted(c.ID); err != nil {
			return nil, err
		}
		if err := c.AddActionObject(a); err != nil {
			return nil, err
		}
	}

	// The log entry is the commit point; documents follow.
	if err := r.log.AddLocalCommit(c); err != nil {
		return nil, err
	}
	for _, d := range touched {
		d.ClearCommittedStaging()
		if err := r.docs.Save(d); err != nil {
			return nil, err
		}
	}

	r.metrics.RecordCommit(len(staged))
	r.record(model.AuditRecord{
		EventType: model.EventTypeCommit,
		CommitID:  c.ID,
		Details:   map[string]any{"actions": len(staged), "documents": len(touched), "comment": comment},
	})
	r.logger.Info("committed", map[string]any{
		"commit_id": string(c.ID),
		"actions":   len(staged),
	})
	return c, nil
}
