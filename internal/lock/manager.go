// Package lock gives one process exclusive ownership of a repository.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/fsutil"
	"github.com/bit-project/bit/pkg/idutil"
	"github.com/bit-project/bit/pkg/model"
)

// DefaultTTL is the lease length of a repository lock.
const DefaultTTL = 5 * time.Minute

// Manager acquires and releases the lock file of one repository.
type Manager struct {
	path string
	ttl  time.Duration
	mu   sync.Mutex
}

// NewManager returns a manager for the lock file at path.
func NewManager(path string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{path: path, ttl: ttl}
}

// Acquire takes the lock. An expired lease left by a crashed holder is
// taken over; a live one fails with ErrLockConflict.
func (m *Manager) Acquire(purpose string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	rec := m.newRecord(purpose)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal lock: %w", err)
	}

	file, err := os.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock: %w", err)
		}
		existing, readErr := m.read()
		if readErr != nil && !os.IsNotExist(readErr) {
			return nil, fmt.Errorf("read existing lock: %w", readErr)
		}
		if existing != nil && !existing.IsExpired(time.Now()) {
			return nil, errclass.ErrLockConflict.WithMessagef("repository is locked by pid %d on %s (%s) until %s",
				existing.PID, existing.Hostname, existing.Purpose, existing.ExpiresAt.Format(time.RFC3339))
		}
		if err := fsutil.AtomicWrite(m.path, data, 0644); err != nil {
			return nil, fmt.Errorf("steal lock: %w", err)
		}
		return rec, nil
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		os.Remove(m.path)
		return nil, fmt.Errorf("write lock: %w", err)
	}
	if err := file.Sync(); err != nil {
		os.Remove(m.path)
		return nil, fmt.Errorf("sync lock: %w", err)
	}
	return rec, nil
}

// Renew extends the lease held under holderNonce.
func (m *Manager) Renew(holderNonce string) (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrLockConflict.WithMessage("lock is not held")
		}
		return nil, fmt.Errorf("read lock: %w", err)
	}
	if rec.HolderNonce != holderNonce {
		return nil, errclass.ErrLockConflict.WithMessage("lock was taken over by another process")
	}

	rec.ExpiresAt = time.Now().UTC().Add(m.ttl)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal lock: %w", err)
	}
	if err := fsutil.AtomicWrite(m.path, data, 0644); err != nil {
		return nil, fmt.Errorf("update lock: %w", err)
	}
	return rec, nil
}

// Release frees the lock if it is still held under holderNonce.
func (m *Manager) Release(holderNonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.read()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock: %w", err)
	}
	if rec.HolderNonce != holderNonce {
		return errclass.ErrLockConflict.WithMessage("cannot release: lock held by another process")
	}
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}

// Status returns the current holder, or nil when the repository is free.
func (m *Manager) Status() (*model.LockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.read()
	if os.IsNotExist(err) {
		return nil, nil
	}
	return rec, err
}

func (m *Manager) newRecord(purpose string) *model.LockRecord {
	host, _ := os.Hostname()
	now := time.Now().UTC()
	return &model.LockRecord{
		HolderNonce: idutil.NewUUID(),
		PID:         os.Getpid(),
		Hostname:    host,
		Purpose:     purpose,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(m.ttl),
	}
}

func (m *Manager) read() (*model.LockRecord, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	var rec model.LockRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &rec, nil
}
