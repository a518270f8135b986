package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/bit-project/bit/pkg/model"
)

// DocumentState is the part of a Document that the state hash covers.
type DocumentState struct {
	ObjectID  model.ObjectID
	StorageID string
	// RemoteTail is the id of the last signed action, empty if none.
	RemoteTail model.ActionID
	// RemoteCount is the number of signed actions.
	RemoteCount int
}

// ComputeStateHash returns a deterministic hash over the confirmed state of a
// set of documents. Two replicas that agree on every signed action produce
// the same hash, whatever local work they carry.
// Algorithm: one line per document, sorted by object id, concatenated and hashed.
func ComputeStateHash(latestRemote *model.CommitID, docs []DocumentState) model.HashValue {
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.RemoteCount == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s:%s:%d:%s", d.StorageID, d.ObjectID, d.RemoteCount, d.RemoteTail))
	}
	sort.Strings(lines)

	var buf strings.Builder
	buf.WriteString("head:" + model.OptString(latestRemote) + "\n")
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	hash := sha256.Sum256([]byte(buf.String()))
	return model.HashValue(hex.EncodeToString(hash[:]))
}
