package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bit-project/bit/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordCommit(3)
	r.RecordCommit(2)
	r.RecordPull(4, time.Millisecond, nil)
	r.RecordPull(0, time.Millisecond, errors.New("down"))
	r.RecordPush("accepted", time.Millisecond)
	r.RecordPush("stale", time.Millisecond)
	r.RecordMerge("accepted", time.Millisecond)
	r.RecordConflict("note")
	r.RecordIntegrityFailure("action_signature")
	r.SetRemoteCommits(7)

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	series := map[string]int{}
	for _, mf := range families {
		series[mf.GetName()] = len(mf.GetMetric())
	}
	assert.Equal(t, 1, series["bit_commits_total"])
	assert.Equal(t, 2, series["bit_pulls_total"])
	assert.Equal(t, 2, series["bit_pushes_total"])
	assert.Equal(t, 1, series["bit_document_conflicts_total"])
}

func TestRegistry_Handler(t *testing.T) {
	r := metrics.NewRegistry()
	r.RecordCommit(1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "bit_commits_total 1")
	assert.Contains(t, string(body), "bit_committed_actions_total 1")
}

func TestDefault(t *testing.T) {
	r := metrics.Default()
	require.NotNil(t, r)
	assert.True(t, metrics.Enabled())
	assert.Same(t, r, metrics.Default())
}
