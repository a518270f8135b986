package integrity_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bit-project/bit/internal/integrity"
	"github.com/bit-project/bit/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestSigner_RoundTrip(t *testing.T) {
	s := integrity.DigestSigner{}
	sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.Contains(t, sig, "sha256:")
	assert.True(t, s.Verify([]byte("payload"), sig))
	assert.False(t, s.Verify([]byte("payload2"), sig))
	assert.False(t, s.Verify([]byte("payload"), "sha256:00"))
}

func TestEd25519Signer_RoundTrip(t *testing.T) {
	s, err := integrity.GenerateEd25519Signer()
	require.NoError(t, err)

	sig, err := s.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.True(t, s.Verify([]byte("payload"), sig))
	assert.False(t, s.Verify([]byte("tampered"), sig))

	v, err := integrity.NewEd25519Verifier(s.PublicKey())
	require.NoError(t, err)
	assert.True(t, v.Verify([]byte("payload"), sig))
}

func TestEd25519Verifier_RejectsForeignSignatures(t *testing.T) {
	a, err := integrity.GenerateEd25519Signer()
	require.NoError(t, err)
	b, err := integrity.GenerateEd25519Signer()
	require.NoError(t, err)

	sig, _ := a.Sign([]byte("payload"))
	assert.False(t, b.Verify([]byte("payload"), sig))

	digest, _ := integrity.DigestSigner{}.Sign([]byte("payload"))
	assert.False(t, a.Verify([]byte("payload"), digest), "digest signatures must not pass ed25519 verification")
	assert.False(t, a.Verify([]byte("payload"), "ed25519:zz"))
}

func TestNewEd25519Verifier_InvalidKey(t *testing.T) {
	_, err := integrity.NewEd25519Verifier("not-hex")
	assert.Error(t, err)
	_, err = integrity.NewEd25519Verifier("abcd")
	assert.Error(t, err)
}

func TestLoadEd25519Signer_GeneratesAndReloads(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "server.key")

	first, err := integrity.LoadEd25519Signer(keyFile)
	require.NoError(t, err)
	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	second, err := integrity.LoadEd25519Signer(keyFile)
	require.NoError(t, err)
	assert.Equal(t, first.PublicKey(), second.PublicKey())
}

func TestLoadEd25519Signer_CorruptKey(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "server.key")
	require.NoError(t, os.WriteFile(keyFile, []byte("garbage"), 0600))
	_, err := integrity.LoadEd25519Signer(keyFile)
	assert.Error(t, err)
}

func TestNewSignerAndVerifier(t *testing.T) {
	s, err := integrity.NewSigner("", "")
	require.NoError(t, err)
	assert.IsType(t, integrity.DigestSigner{}, s)

	_, err = integrity.NewSigner(integrity.SchemeEd25519, "")
	assert.Error(t, err)
	_, err = integrity.NewSigner("rsa", "")
	assert.Error(t, err)

	v, err := integrity.NewVerifier(integrity.SchemeDigest, "")
	require.NoError(t, err)
	assert.IsType(t, integrity.DigestSigner{}, v)

	_, err = integrity.NewVerifier(integrity.SchemeEd25519, "")
	assert.Error(t, err)
}

func TestComputeStateHash(t *testing.T) {
	head := model.CommitID("01HX")
	a := integrity.DocumentState{ObjectID: "a", StorageID: "account", RemoteTail: "x", RemoteCount: 2}
	b := integrity.DocumentState{ObjectID: "b", StorageID: "note", RemoteTail: "y", RemoteCount: 1}
	localOnly := integrity.DocumentState{ObjectID: "c", StorageID: "note"}

	h1 := integrity.ComputeStateHash(&head, []integrity.DocumentState{a, b})
	h2 := integrity.ComputeStateHash(&head, []integrity.DocumentState{b, localOnly, a})
	assert.Equal(t, h1, h2, "order and local-only documents must not matter")

	b.RemoteCount = 2
	h3 := integrity.ComputeStateHash(&head, []integrity.DocumentState{a, b})
	assert.NotEqual(t, h1, h3)

	assert.NotEqual(t, h1, integrity.ComputeStateHash(nil, []integrity.DocumentState{a, b}))
}
