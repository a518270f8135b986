// Package integrity provides the remote-signature schemes and the state
// hashes used to check a repository for tampering.
package integrity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/bit-project/bit/pkg/fsutil"
	"github.com/bit-project/bit/pkg/model"
)

// Signature schemes.
const (
	SchemeDigest  = "digest"
	SchemeEd25519 = "ed25519"
)

const (
	prefixDigest  = "sha256:"
	prefixEd25519 = "ed25519:"
)

// DigestSigner signs with a plain SHA-256 of the payload. Anyone can produce
// and check such a signature; it detects corruption, not forgery.
type DigestSigner struct{}

// Sign returns "sha256:<hex>".
func (DigestSigner) Sign(payload []byte) (string, error) {
	sum := sha256.Sum256(payload)
	return prefixDigest + hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the digest and compares in constant time.
func (s DigestSigner) Verify(payload []byte, signature string) bool {
	want, _ := s.Sign(payload)
	return subtle.ConstantTimeCompare([]byte(want), []byte(signature)) == 1
}

// Ed25519Signer signs with the server's private key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	Ed25519Verifier
}

// NewEd25519Signer wraps an existing private key.
func NewEd25519Signer(priv ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{
		priv:            priv,
		Ed25519Verifier: Ed25519Verifier{pub: priv.Public().(ed25519.PublicKey)},
	}
}

// GenerateEd25519Signer creates a signer with a fresh key pair.
func GenerateEd25519Signer() (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return NewEd25519Signer(priv), nil
}

// Sign returns "ed25519:<hex>".
func (s *Ed25519Signer) Sign(payload []byte) (string, error) {
	return prefixEd25519 + hex.EncodeToString(ed25519.Sign(s.priv, payload)), nil
}

// Seed returns the hex private key seed for persisting in a key file.
func (s *Ed25519Signer) Seed() string {
	return hex.EncodeToString(s.priv.Seed())
}

// Ed25519Verifier checks signatures against a public key only.
type Ed25519Verifier struct {
	pub ed25519.PublicKey
}

// NewEd25519Verifier parses a hex public key.
func NewEd25519Verifier(pubHex string) (Ed25519Verifier, error) {
	pub, err := hex.DecodeString(strings.TrimSpace(pubHex))
	if err != nil {
		return Ed25519Verifier{}, fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return Ed25519Verifier{}, fmt.Errorf("invalid public key size %d", len(pub))
	}
	return Ed25519Verifier{pub: pub}, nil
}

// PublicKey returns the hex public key.
func (v Ed25519Verifier) PublicKey() string {
	return hex.EncodeToString(v.pub)
}

func (v Ed25519Verifier) Verify(payload []byte, signature string) bool {
	hexSig, ok := strings.CutPrefix(signature, prefixEd25519)
	if !ok || len(v.pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(hexSig)
	if err != nil {
		return false
	}
	return ed25519.Verify(v.pub, payload, sig)
}

// LoadEd25519Signer reads a hex seed from keyFile, generating and saving a
// new key when the file does not exist yet.
func LoadEd25519Signer(keyFile string) (*Ed25519Signer, error) {
	data, err := os.ReadFile(keyFile)
	if os.IsNotExist(err) {
		s, err := GenerateEd25519Signer()
		if err != nil {
			return nil, err
		}
		if err := fsutil.AtomicWrite(keyFile, []byte(s.Seed()+"\n"), 0600); err != nil {
			return nil, fmt.Errorf("save signing key: %w", err)
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key %s is not a hex ed25519 seed", keyFile)
	}
	return NewEd25519Signer(ed25519.NewKeyFromSeed(seed)), nil
}

// NewSigner builds the server signer for scheme.
func NewSigner(scheme, keyFile string) (model.Signer, error) {
	switch scheme {
	case "", SchemeDigest:
		return DigestSigner{}, nil
	case SchemeEd25519:
		if keyFile == "" {
			return nil, fmt.Errorf("ed25519 signing needs a key file")
		}
		return LoadEd25519Signer(keyFile)
	default:
		return nil, fmt.Errorf("unknown signing scheme %q", scheme)
	}
}

// NewVerifier builds the verifier a client uses to check remote signatures.
func NewVerifier(scheme, publicKey string) (model.Verifier, error) {
	switch scheme {
	case "", SchemeDigest:
		return DigestSigner{}, nil
	case SchemeEd25519:
		if publicKey == "" {
			return nil, fmt.Errorf("ed25519 verification needs the server public key")
		}
		return NewEd25519Verifier(publicKey)
	default:
		return nil, fmt.Errorf("unknown signing scheme %q", scheme)
	}
}
