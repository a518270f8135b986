package audit_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bit-project/bit/internal/audit"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileAppender_HashChain(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	appender := audit.NewFileAppender(logPath)

	require.NoError(t, appender.Append(model.AuditRecord{EventType: model.EventTypeCommit, UID: "alice", CommitID: "c1"}))
	require.NoError(t, appender.Append(model.AuditRecord{EventType: model.EventTypePush, Details: map[string]any{"accepted": 1}}))

	records, err := appender.Records()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, model.HashValue(""), records[0].PrevHash)
	assert.Equal(t, records[0].RecordHash, records[1].PrevHash)
	assert.NotEmpty(t, records[1].RecordHash)
	assert.Equal(t, model.CommitID("c1"), records[0].CommitID)

	n, err := appender.Verify()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFileAppender_VerifyDetectsTampering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)
	require.NoError(t, appender.Append(model.AuditRecord{EventType: model.EventTypeCommit, UID: "alice"}))
	require.NoError(t, appender.Append(model.AuditRecord{EventType: model.EventTypeCommit, UID: "alice"}))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(logPath, []byte(strings.Replace(string(data), "alice", "mallory", 1)), 0644))

	_, err = appender.Verify()
	assert.ErrorIs(t, err, errclass.ErrAuditChainBroken)
}

func TestFileAppender_VerifyDetectsRemoval(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	appender := audit.NewFileAppender(logPath)
	for i := 0; i < 3; i++ {
		require.NoError(t, appender.Append(model.AuditRecord{EventType: model.EventTypePull}))
	}

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.SplitAfter(string(data), "\n")
	require.NoError(t, os.WriteFile(logPath, []byte(lines[0]+lines[2]), 0644))

	_, err = appender.Verify()
	assert.ErrorIs(t, err, errclass.ErrAuditChainBroken)
}

func TestFileAppender_ConcurrentAppends(t *testing.T) {
	appender := audit.NewFileAppender(filepath.Join(t.TempDir(), "audit.jsonl"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			assert.NoError(t, appender.Append(model.AuditRecord{EventType: model.EventTypeMerge, Details: map[string]any{"idx": idx}}))
		}(i)
	}
	wg.Wait()

	n, err := appender.Verify()
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestFileAppender_MissingLog(t *testing.T) {
	appender := audit.NewFileAppender(filepath.Join(t.TempDir(), "none.jsonl"))
	records, err := appender.Records()
	require.NoError(t, err)
	assert.Empty(t, records)
	n, err := appender.Verify()
	require.NoError(t, err)
	assert.Zero(t, n)
}
