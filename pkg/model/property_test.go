package model_test

import (
	"encoding/json"
	"testing"

	"github.com/bit-project/bit/internal/integrity"
	"github.com/bit-project/bit/pkg/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: a signed action or commit verifies; changing any signed field
// afterwards makes verification fail.
func TestSignatureRoundTripProperty(t *testing.T) {
	signer, err := integrity.GenerateEd25519Signer()
	if err != nil {
		t.Fatal(err)
	}
	auth, err := model.NewServerAuthority(model.ServerMode(":0"), signer)
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("signed actions verify and tampering is detected", prop.ForAll(
		func(storage, uid, name, mutated string) bool {
			kind, err := model.Create(map[string]string{"name": name})
			if err != nil {
				return false
			}
			a := model.NewActionObject(storage, model.NewObjectID(), uid, nil, kind)
			if err := a.SignRemote(auth); err != nil {
				return false
			}
			if !a.HasValidSignature(auth.Verifier()) {
				return false
			}
			if mutated == uid {
				return true
			}
			tampered := a.Clone()
			tampered.UID = mutated
			return !tampered.HasValidSignature(auth.Verifier())
		},
		gen.Identifier(),
		gen.AlphaString(),
		gen.AnyString(),
		gen.AlphaString(),
	))

	properties.Property("signed commits verify and tampering is detected", prop.ForAll(
		func(comment, mutated string, n int) bool {
			c := model.NewCommit("alice", comment)
			for i := 0; i < n; i++ {
				kind, _ := model.Patch(map[string]int{"i": i})
				if err := c.AddActionObject(model.NewActionObject("note", model.NewObjectID(), "alice", nil, kind)); err != nil {
					return false
				}
			}
			if err := c.AddRemoteSignature(auth); err != nil {
				return false
			}
			data, err := json.Marshal(c)
			if err != nil {
				return false
			}
			var decoded model.Commit
			if err := json.Unmarshal(data, &decoded); err != nil {
				return false
			}
			if !decoded.HasValidRemoteSignature(auth.Verifier()) {
				return false
			}
			if mutated == comment {
				return true
			}
			decoded.Comment = mutated
			return !decoded.HasValidRemoteSignature(auth.Verifier())
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
