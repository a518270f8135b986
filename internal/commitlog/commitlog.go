// Package commitlog persists the local and remote commit logs and the
// CommitIndex that points at the head of each.
package commitlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/fsutil"
	"github.com/bit-project/bit/pkg/model"
)

const (
	LocalFile  = "commits/local.jsonl"
	RemoteFile = "commits/remote.jsonl"
	IndexFile  = "commits/index.json"
)

// errStop ends a scan early without reporting an error.
var errStop = errors.New("stop")

// Log is the pair of append-only commit logs of one repository. It is not
// safe for concurrent use; the owning repository serializes access.
type Log struct {
	fs    fsutil.Store
	index model.CommitIndex
}

// Init creates empty local and remote logs and a fresh index.
func Init(store fsutil.Store) (*Log, error) {
	for _, name := range []string{LocalFile, RemoteFile} {
		if err := store.Create(name); err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
	}
	l := &Log{fs: store}
	if err := l.saveIndex(); err != nil {
		return nil, err
	}
	return l, nil
}

// Open loads the index of an existing log.
func Open(store fsutil.Store) (*Log, error) {
	data, err := store.Read(IndexFile)
	if err != nil {
		return nil, fmt.Errorf("read commit index: %w", err)
	}
	l := &Log{fs: store}
	if err := json.Unmarshal(data, &l.index); err != nil {
		return nil, fmt.Errorf("parse commit index: %w", err)
	}
	return l, nil
}

// Index returns a copy of the current cursors.
func (l *Log) Index() model.CommitIndex {
	return model.CommitIndex{
		LatestLocalCommitID:  copyID(l.index.LatestLocalCommitID),
		LatestRemoteCommitID: copyID(l.index.LatestRemoteCommitID),
	}
}

// LatestRemote returns the head of the remote log, nil when empty.
func (l *Log) LatestRemote() *model.CommitID {
	return copyID(l.index.LatestRemoteCommitID)
}

// LatestLocal returns the head of the local log, nil when empty.
func (l *Log) LatestLocal() *model.CommitID {
	return copyID(l.index.LatestLocalCommitID)
}

// LoadLocals returns every unconfirmed commit in append order.
func (l *Log) LoadLocals() ([]*model.Commit, error) {
	return l.load(LocalFile)
}

// LoadRemotes returns the whole confirmed history in ancestry order.
func (l *Log) LoadRemotes() ([]*model.Commit, error) {
	return l.load(RemoteFile)
}

// LoadRemotesAfter returns the remote commits strictly after id. A nil id
// returns the whole log.
func (l *Log) LoadRemotesAfter(id *model.CommitID) ([]*model.Commit, error) {
	var res []*model.Commit
	err := l.ScanRemotesAfter(id, func(c *model.Commit) error {
		res = append(res, c)
		return nil
	})
	return res, err
}

// ScanRemotesAfter streams the remote commits strictly after id to fn. An id
// that is not part of the remote log fails with ErrRemoteChainBroken before
// fn is called.
func (l *Log) ScanRemotesAfter(id *model.CommitID, fn func(*model.Commit) error) error {
	if id != nil {
		found := false
		err := l.scan(RemoteFile, func(c *model.Commit) error {
			if c.ID == *id {
				found = true
				return errStop
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !found {
			return errclass.ErrRemoteChainBroken.WithMessagef("commit %s is not part of the remote history", *id)
		}
	}

	skipping := id != nil
	return l.scan(RemoteFile, func(c *model.Commit) error {
		if skipping {
			if c.ID == *id {
				skipping = false
			}
			return nil
		}
		return fn(c)
	})
}

// FindRemote returns the remote commit with id.
func (l *Log) FindRemote(id model.CommitID) (*model.Commit, error) {
	var found *model.Commit
	err := l.scan(RemoteFile, func(c *model.Commit) error {
		if c.ID == id {
			found = c
			return errStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errclass.ErrRemoteChainBroken.WithMessagef("commit %s not found", id)
	}
	return found, nil
}

// AddLocalCommit stamps c with the current local head as its ancestor,
// appends it and advances the index.
func (l *Log) AddLocalCommit(c *model.Commit) error {
	if err := c.SetAncestor(l.index.LatestLocalCommitID); err != nil {
		return err
	}
	if err := l.appendCommit(LocalFile, c); err != nil {
		return err
	}
	l.index.LatestLocalCommitID = copyID(&c.ID)
	return l.saveIndex()
}

// AddRemoteCommit appends c to the remote log. It fails with
// ErrAncestorMismatch, leaving log and index untouched, unless c extends the
// current remote head.
func (l *Log) AddRemoteCommit(c *model.Commit) error {
	if !model.SameCommitID(c.AncestorID, l.index.LatestRemoteCommitID) {
		return errclass.ErrAncestorMismatch.WithMessagef("commit %s extends %s, remote head is %s",
			c.ID, model.OptString(c.AncestorID), model.OptString(l.index.LatestRemoteCommitID))
	}
	if err := l.appendCommit(RemoteFile, c); err != nil {
		return err
	}
	l.index.LatestRemoteCommitID = copyID(&c.ID)
	return l.saveIndex()
}

// ReplaceLocals rewrites the local log with commits, in order, and points the
// local head at the last one.
func (l *Log) ReplaceLocals(commits []*model.Commit) error {
	var buf []byte
	for _, c := range commits {
		line, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode commit %s: %w", c.ID, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	if err := l.fs.Write(LocalFile, buf); err != nil {
		return fmt.Errorf("rewrite local log: %w", err)
	}
	l.index.LatestLocalCommitID = nil
	if n := len(commits); n > 0 {
		l.index.LatestLocalCommitID = copyID(&commits[n-1].ID)
	}
	return l.saveIndex()
}

// RemoveLocal drops one commit from the local log.
func (l *Log) RemoveLocal(id model.CommitID) error {
	locals, err := l.LoadLocals()
	if err != nil {
		return err
	}
	kept := locals[:0]
	for _, c := range locals {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	return l.ReplaceLocals(kept)
}

// ClearLocals empties the local log.
func (l *Log) ClearLocals() error {
	return l.ReplaceLocals(nil)
}

// Repair realigns the index with the last entry of each log. It reports
// whether the index changed, which happens only after an interrupted write.
func (l *Log) Repair() (bool, error) {
	local, err := l.last(LocalFile)
	if err != nil {
		return false, err
	}
	remote, err := l.last(RemoteFile)
	if err != nil {
		return false, err
	}
	if model.SameCommitID(local, l.index.LatestLocalCommitID) &&
		model.SameCommitID(remote, l.index.LatestRemoteCommitID) {
		return false, nil
	}
	l.index.LatestLocalCommitID = local
	l.index.LatestRemoteCommitID = remote
	return true, l.saveIndex()
}

func (l *Log) last(name string) (*model.CommitID, error) {
	var id *model.CommitID
	err := l.scan(name, func(c *model.Commit) error {
		id = copyID(&c.ID)
		return nil
	})
	return id, err
}

func (l *Log) load(name string) ([]*model.Commit, error) {
	var res []*model.Commit
	err := l.scan(name, func(c *model.Commit) error {
		res = append(res, c)
		return nil
	})
	return res, err
}

func (l *Log) scan(name string, fn func(*model.Commit) error) error {
	err := l.fs.Scan(name, func(record []byte) error {
		var c model.Commit
		if err := json.Unmarshal(record, &c); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		return fn(&c)
	})
	switch {
	case errors.Is(err, errStop):
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return nil
	}
	return err
}

func (l *Log) appendCommit(name string, c *model.Commit) error {
	line, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode commit %s: %w", c.ID, err)
	}
	if err := l.fs.Append(name, line); err != nil {
		return fmt.Errorf("append commit %s: %w", c.ID, err)
	}
	return nil
}

func (l *Log) saveIndex() error {
	data, err := json.MarshalIndent(l.index, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal commit index: %w", err)
	}
	if err := l.fs.Write(IndexFile, data); err != nil {
		return fmt.Errorf("write commit index: %w", err)
	}
	return nil
}

func copyID(id *model.CommitID) *model.CommitID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
