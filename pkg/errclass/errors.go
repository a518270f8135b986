// Package errclass defines the stable, machine-readable error classes of bit
// and the failure taxonomy callers use to pick a recovery strategy.
package errclass

import (
	"errors"
	"fmt"
)

// Error is a stable, machine-readable error class.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithMessage returns a new Error with the same Code but a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Repository and layout errors.
var (
	ErrAlreadyExists     = &Error{Code: "E_ALREADY_EXISTS"}
	ErrNotARepository    = &Error{Code: "E_NOT_A_REPOSITORY"}
	ErrFormatUnsupported = &Error{Code: "E_FORMAT_UNSUPPORTED"}
	ErrNameInvalid       = &Error{Code: "E_NAME_INVALID"}
	ErrPathEscape        = &Error{Code: "E_PATH_ESCAPE"}
	ErrLockConflict      = &Error{Code: "E_LOCK_CONFLICT"}
	ErrModeUnsupported   = &Error{Code: "E_MODE_UNSUPPORTED"}
	ErrRoleForbidden     = &Error{Code: "E_ROLE_FORBIDDEN"}
	ErrStorageUnknown    = &Error{Code: "E_STORAGE_UNKNOWN"}
	ErrNothingToCommit   = &Error{Code: "E_NOTHING_TO_COMMIT"}
)

// Document errors.
var (
	ErrDocumentNotFound     = &Error{Code: "E_DOCUMENT_NOT_FOUND"}
	ErrDocumentExists       = &Error{Code: "E_DOCUMENT_EXISTS"}
	ErrPatchWithoutDocument = &Error{Code: "E_PATCH_WITHOUT_DOCUMENT"}
	ErrParentNotFound       = &Error{Code: "E_PARENT_NOT_FOUND"}
	ErrDocumentConflict     = &Error{Code: "E_DOCUMENT_CONFLICT"}
	ErrInvalidAction        = &Error{Code: "E_INVALID_ACTION"}
)

// Synchronization errors.
var (
	ErrAncestorMismatch  = &Error{Code: "E_ANCESTOR_MISMATCH"}
	ErrAlreadySigned     = &Error{Code: "E_ALREADY_SIGNED"}
	ErrSignatureInvalid  = &Error{Code: "E_SIGNATURE_INVALID"}
	ErrTransport         = &Error{Code: "E_TRANSPORT"}
	ErrRemoteChainBroken = &Error{Code: "E_REMOTE_CHAIN_BROKEN"}
	ErrAuditChainBroken  = &Error{Code: "E_AUDIT_CHAIN_BROKEN"}
	ErrUnauthorized      = &Error{Code: "E_UNAUTHORIZED"}
	ErrVerifyFailed      = &Error{Code: "E_VERIFY_FAILED"}
)

// Kind groups error classes by the recovery they demand.
type Kind string

const (
	// KindHard failures are programmer or local errors; retrying does not help.
	KindHard Kind = "hard"
	// KindStale means the remote history moved on: pull, then retry.
	KindStale Kind = "stale"
	// KindConflict needs an operator or a merge policy.
	KindConflict Kind = "conflict"
	// KindTransport failures are retryable with the same cursor.
	KindTransport Kind = "transport"
	// KindIntegrity means tampering or corruption. Never retry silently.
	KindIntegrity Kind = "integrity"
)

var kinds = map[string]Kind{
	ErrAncestorMismatch.Code:  KindStale,
	ErrDocumentConflict.Code:  KindConflict,
	ErrTransport.Code:         KindTransport,
	ErrSignatureInvalid.Code:  KindIntegrity,
	ErrRemoteChainBroken.Code: KindIntegrity,
	ErrAuditChainBroken.Code:  KindIntegrity,
	ErrVerifyFailed.Code:      KindIntegrity,
}

// KindOf classifies err. Errors that carry no class are hard failures.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return KindHard
	}
	if k, ok := kinds[e.Code]; ok {
		return k
	}
	return KindHard
}

// Retryable reports whether an automatic retry may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindStale, KindTransport:
		return true
	default:
		return false
	}
}

// Code extracts the class code of err, or "" if it has none.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// FromCode rebuilds an error received over the wire. Known codes keep their
// class so errors.Is and KindOf work on the receiving side.
func FromCode(code, msg string) *Error {
	for _, e := range all {
		if e.Code == code {
			return e.WithMessage(msg)
		}
	}
	return &Error{Code: code, Message: msg}
}

var all = []*Error{
	ErrAlreadyExists, ErrNotARepository, ErrFormatUnsupported, ErrNameInvalid,
	ErrPathEscape, ErrLockConflict, ErrModeUnsupported, ErrRoleForbidden,
	ErrStorageUnknown, ErrNothingToCommit,
	ErrDocumentNotFound, ErrDocumentExists, ErrPatchWithoutDocument,
	ErrParentNotFound, ErrDocumentConflict, ErrInvalidAction,
	ErrAncestorMismatch, ErrAlreadySigned, ErrSignatureInvalid, ErrTransport,
	ErrRemoteChainBroken, ErrAuditChainBroken, ErrUnauthorized, ErrVerifyFailed,
}
