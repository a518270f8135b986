package model

import "time"

// LockRecord is stored at .bit/locks/repo.lock while a process owns the repository.
type LockRecord struct {
	HolderNonce string    `json:"holder_nonce"`
	PID         int       `json:"pid"`
	Hostname    string    `json:"hostname"`
	Purpose     string    `json:"purpose,omitempty"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired returns true if the lease has run out.
func (l *LockRecord) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
