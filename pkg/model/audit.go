package model

import "time"

// AuditEventType identifies the type of auditable event.
type AuditEventType string

const (
	EventTypeRepoInit      AuditEventType = "repo_init"
	EventTypeCommit        AuditEventType = "commit"
	EventTypePull          AuditEventType = "pull"
	EventTypePush          AuditEventType = "push"
	EventTypePushRejected  AuditEventType = "push_rejected"
	EventTypeMerge         AuditEventType = "merge"
	EventTypeConflict      AuditEventType = "conflict"
	EventTypeClean         AuditEventType = "clean"
	EventTypeRebase        AuditEventType = "rebase"
	EventTypeIntegrityFail AuditEventType = "integrity_fail"
)

// AuditRecord is a single line in the audit log (JSONL format).
type AuditRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventType  AuditEventType `json:"event_type"`
	UID        string         `json:"uid,omitempty"`
	CommitID   CommitID       `json:"commit_id,omitempty"`
	ObjectID   ObjectID       `json:"object_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	PrevHash   HashValue      `json:"prev_hash"`
	RecordHash HashValue      `json:"record_hash"`
}
