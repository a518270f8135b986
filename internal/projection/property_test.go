package projection_test

import (
	"testing"

	"github.com/bit-project/bit/internal/document"
	"github.com/bit-project/bit/pkg/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: replaying a document from scratch twice gives the same value, and
// incremental syncs after each action agree with a single full replay.
func TestReplayDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("replay is deterministic", prop.ForAll(
		func(amounts []int) bool {
			d := document.New(model.NewObjectID(), "tally")
			incremental := newIndex()
			for i, amount := range amounts {
				e := entry{Add: amount}
				if i == 0 {
					e.Name = "acc"
				}
				addLocal(t, d, e)
				if err := incremental.SyncWithDoc(d); err != nil {
					return false
				}
			}

			a, b := newIndex(), newIndex()
			if a.SyncWithDoc(d) != nil || b.SyncWithDoc(d) != nil {
				return false
			}
			va, _ := a.Get(d.ID)
			vb, _ := b.Get(d.ID)
			vi, _ := incremental.Get(d.ID)
			return va == vb && va == vi && va.Folds == len(amounts)
		},
		gen.SliceOfN(10, gen.IntRange(-1000, 1000)).SuchThat(func(v []int) bool { return len(v) > 0 }),
	))

	properties.TestingRun(t)
}
