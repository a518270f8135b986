package model

import "github.com/bit-project/bit/pkg/idutil"

// ActionID identifies one ActionObject. Never reused.
type ActionID string

// ObjectID identifies one logical record, and therefore its Document.
type ObjectID string

// CommitID identifies one Commit. Commit ids are ULIDs and sort by creation time.
type CommitID string

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// NewActionID generates a fresh action id.
func NewActionID() ActionID {
	return ActionID(idutil.NewUUID())
}

// NewObjectID generates a fresh record id.
func NewObjectID() ObjectID {
	return ObjectID(idutil.NewUUID())
}

// NewCommitID generates a fresh commit id.
func NewCommitID() CommitID {
	return CommitID(idutil.NewULID())
}

// ShortID returns the first 8 characters for display.
func ShortID[T ~string](id T) string {
	s := string(id)
	if len(s) >= 8 {
		return s[:8]
	}
	return s
}

// Status is the chain-validity state of a Document.
type Status string

const (
	StatusOK       Status = "ok"
	StatusConflict Status = "conflict"
)

func ptr[T any](v T) *T {
	return &v
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SameActionID reports whether two optional action ids are equal.
func SameActionID(a, b *ActionID) bool {
	return eqPtr(a, b)
}

// SameCommitID reports whether two optional commit ids are equal.
func SameCommitID(a, b *CommitID) bool {
	return eqPtr(a, b)
}

// OptString renders an optional id for logs and display, "-" when absent.
func OptString[T ~string](id *T) string {
	if id == nil {
		return "-"
	}
	return string(*id)
}
