package model

import "github.com/bit-project/bit/pkg/errclass"

// Verifier checks a remote signature over a canonical payload.
type Verifier interface {
	Verify(payload []byte, signature string) bool
}

// Signer produces remote signatures. Only a server-mode repository holds one
// wrapped in a ServerAuthority.
type Signer interface {
	Verifier
	Sign(payload []byte) (string, error)
}

// ServerAuthority is the capability to sign ActionObjects and Commits.
// The zero value carries no signer and every signing call fails with
// ErrRoleForbidden.
type ServerAuthority struct {
	signer Signer
}

// NewServerAuthority grants signing authority to a repository in server mode.
func NewServerAuthority(mode Mode, signer Signer) (ServerAuthority, error) {
	if !mode.IsServer() {
		return ServerAuthority{}, errclass.ErrRoleForbidden.WithMessagef("signing requires server mode, repository is %s", mode)
	}
	if signer == nil {
		return ServerAuthority{}, errclass.ErrRoleForbidden.WithMessage("server authority needs a signer")
	}
	return ServerAuthority{signer: signer}, nil
}

// Verifier returns the verifier matching this authority's signatures.
func (a ServerAuthority) Verifier() Verifier {
	return a.signer
}

func (a ServerAuthority) sign(payload []byte) (string, error) {
	if a.signer == nil {
		return "", errclass.ErrRoleForbidden.WithMessage("no server authority")
	}
	return a.signer.Sign(payload)
}

// ClientAuthority is the capability to re-target unsigned actions before they
// are transmitted. Servers never hold one.
type ClientAuthority struct {
	granted bool
}

// NewClientAuthority grants re-targeting authority to a local or remote-mode
// repository.
func NewClientAuthority(mode Mode) (ClientAuthority, error) {
	if mode.IsServer() {
		return ClientAuthority{}, errclass.ErrRoleForbidden.WithMessage("a server must not rewrite client actions")
	}
	return ClientAuthority{granted: true}, nil
}

func (a ClientAuthority) check() error {
	if !a.granted {
		return errclass.ErrRoleForbidden.WithMessage("no client authority")
	}
	return nil
}
