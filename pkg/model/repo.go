package model

import (
	"fmt"
	"sort"
)

// ModeKind names the protocol role a repository plays.
type ModeKind string

const (
	ModeLocal  ModeKind = "local"
	ModeRemote ModeKind = "remote"
	ModeServer ModeKind = "server"
)

// Mode is the operating mode of a repository: Local (no networking),
// Remote (client of a server at RemoteURL) or Server (authoritative, listening
// on BindAddress).
type Mode struct {
	Kind        ModeKind `json:"kind"`
	RemoteURL   string   `json:"remote_url,omitempty"`
	BindAddress string   `json:"bind_address,omitempty"`
}

// LocalMode returns the Local mode.
func LocalMode() Mode {
	return Mode{Kind: ModeLocal}
}

// RemoteMode returns a client mode pulling from and pushing to url.
func RemoteMode(url string) Mode {
	return Mode{Kind: ModeRemote, RemoteURL: url}
}

// ServerMode returns the authoritative mode bound to addr.
func ServerMode(addr string) Mode {
	return Mode{Kind: ModeServer, BindAddress: addr}
}

func (m Mode) IsLocal() bool  { return m.Kind == ModeLocal || m.Kind == "" }
func (m Mode) IsRemote() bool { return m.Kind == ModeRemote }
func (m Mode) IsServer() bool { return m.Kind == ModeServer }

func (m Mode) String() string {
	switch m.Kind {
	case ModeRemote:
		return fmt.Sprintf("remote(%s)", m.RemoteURL)
	case ModeServer:
		return fmt.Sprintf("server(%s)", m.BindAddress)
	default:
		return "local"
	}
}

// Validate checks that the mode carries the address its kind needs.
func (m Mode) Validate() error {
	switch m.Kind {
	case ModeLocal, "":
		return nil
	case ModeRemote:
		if m.RemoteURL == "" {
			return fmt.Errorf("remote mode needs a remote url")
		}
	case ModeServer:
		if m.BindAddress == "" {
			return fmt.Errorf("server mode needs a bind address")
		}
	default:
		return fmt.Errorf("unknown mode %q", m.Kind)
	}
	return nil
}

// RepoDetails is the persisted repository configuration: its Mode plus every
// known record, keyed by object id and mapped to its storage id.
type RepoDetails struct {
	Mode      Mode                `json:"mode"`
	Documents map[ObjectID]string `json:"documents"`
}

// NewRepoDetails returns empty details for mode.
func NewRepoDetails(mode Mode) *RepoDetails {
	return &RepoDetails{Mode: mode, Documents: make(map[ObjectID]string)}
}

// Has reports whether id is a known record.
func (d *RepoDetails) Has(id ObjectID) bool {
	_, ok := d.Documents[id]
	return ok
}

// Add registers a record.
func (d *RepoDetails) Add(id ObjectID, storageID string) {
	if d.Documents == nil {
		d.Documents = make(map[ObjectID]string)
	}
	d.Documents[id] = storageID
}

// Forget drops a record from the known set.
func (d *RepoDetails) Forget(id ObjectID) {
	delete(d.Documents, id)
}

// ObjectIDs returns the known record ids in sorted order.
func (d *RepoDetails) ObjectIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(d.Documents))
	for id := range d.Documents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
