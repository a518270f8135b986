package webhook_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bit-project/bit/pkg/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []webhook.Event
	sigs   []string
}

func (r *recorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		var ev webhook.Event
		require.NoError(t, json.Unmarshal(body, &ev))
		assert.Equal(t, string(ev.Event), req.Header.Get("X-Bit-Event"))
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.sigs = append(r.sigs, req.Header.Get("X-Bit-Signature"))
		r.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func fastOptions() webhook.Options {
	return webhook.Options{MaxRetries: 2, RetryDelay: time.Millisecond, QueueSize: 10, Timeout: time.Second}
}

func TestClient_SendSigned(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	c := webhook.NewClient([]webhook.Hook{{URL: srv.URL, Secret: "k", Events: []webhook.EventType{webhook.EventCommitAccepted}}}, fastOptions())
	defer c.Close()

	require.NoError(t, c.Send(webhook.Event{Event: webhook.EventCommitAccepted, CommitID: "01HX"}))
	require.Len(t, rec.events, 1)
	assert.Equal(t, "01HX", rec.events[0].CommitID)
	assert.NotEmpty(t, rec.events[0].Timestamp)

	payload, _ := json.Marshal(rec.events[0])
	assert.Equal(t, webhook.Sign(payload, "k"), rec.sigs[0])
}

func TestClient_EventFiltering(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	c := webhook.NewClient([]webhook.Hook{{URL: srv.URL, Events: []webhook.EventType{webhook.EventDocumentConflict}}}, fastOptions())
	defer c.Close()

	require.NoError(t, c.Send(webhook.Event{Event: webhook.EventCommitAccepted}))
	assert.Empty(t, rec.events)
	require.NoError(t, c.Send(webhook.Event{Event: webhook.EventDocumentConflict}))
	assert.Len(t, rec.events, 1)
	assert.Empty(t, rec.sigs[0])
}

func TestClient_NotifyDrainsOnClose(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	c := webhook.NewClient([]webhook.Hook{{URL: srv.URL}}, fastOptions())
	c.Notify(webhook.Event{Event: webhook.EventPushRejected})
	c.Notify(webhook.Event{Event: webhook.EventPullCompleted})
	require.NoError(t, c.Close())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.events, 2)
}

func TestClient_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := webhook.NewClient([]webhook.Hook{{URL: srv.URL}}, fastOptions())
	defer c.Close()
	require.NoError(t, c.Send(webhook.Event{Event: webhook.EventIntegrityFailed}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := webhook.NewClient([]webhook.Hook{{URL: srv.URL}}, fastOptions())
	defer c.Close()
	err := c.Send(webhook.Event{Event: webhook.EventIntegrityFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
}

func TestClient_NoHooks(t *testing.T) {
	c := webhook.NewClient(nil, webhook.Options{})
	c.Notify(webhook.Event{Event: webhook.EventCommitAccepted})
	assert.NoError(t, c.Send(webhook.Event{Event: webhook.EventCommitAccepted}))
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
