// Package transport carries commits between a client repository and the
// server: pull streams the remote history after a cursor, push submits one
// local commit for signing.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bit-project/bit/pkg/model"
)

// Transport is the client side of the wire protocol.
type Transport interface {
	// Pull calls fn for every remote commit strictly after after, in
	// ancestry order, and returns once the peer is caught up. Network
	// failures are reported as E_TRANSPORT; errors returned by fn stop the
	// stream and are returned unchanged.
	Pull(ctx context.Context, after *model.CommitID, fn func(*model.Commit) error) error
	// Push submits c and returns the server-signed copy.
	Push(ctx context.Context, c *model.Commit) (*model.Commit, error)
}

// Backend is the server role behind the wire protocol.
type Backend interface {
	ServePull(ctx context.Context, after *model.CommitID, fn func(*model.Commit) error) error
	MergePush(ctx context.Context, c *model.Commit) (*model.Commit, error)
	Head() *model.CommitID
}

// Loopback connects a client directly to an in-process Backend. Commits are
// copied through their JSON encoding so neither side shares memory with the
// other.
type Loopback struct {
	backend Backend
}

// NewLoopback returns a Transport served by b.
func NewLoopback(b Backend) *Loopback {
	return &Loopback{backend: b}
}

func (l *Loopback) Pull(ctx context.Context, after *model.CommitID, fn func(*model.Commit) error) error {
	return l.backend.ServePull(ctx, after, func(c *model.Commit) error {
		cp, err := roundTrip(c)
		if err != nil {
			return err
		}
		return fn(cp)
	})
}

func (l *Loopback) Push(ctx context.Context, c *model.Commit) (*model.Commit, error) {
	sent, err := roundTrip(c)
	if err != nil {
		return nil, err
	}
	signed, err := l.backend.MergePush(ctx, sent)
	if err != nil {
		return nil, err
	}
	return roundTrip(signed)
}

func roundTrip(c *model.Commit) (*model.Commit, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode commit %s: %w", c.ID, err)
	}
	var cp model.Commit
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode commit %s: %w", c.ID, err)
	}
	return &cp, nil
}
