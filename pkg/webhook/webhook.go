// Package webhook sends HMAC-signed HTTP notifications for sync events.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bit-project/bit/pkg/logging"
)

// EventType names a notification.
type EventType string

const (
	EventCommitAccepted   EventType = "commit.accepted"
	EventPushRejected     EventType = "push.rejected"
	EventDocumentConflict EventType = "document.conflict"
	EventIntegrityFailed  EventType = "integrity.failed"
	EventPullCompleted    EventType = "pull.completed"
)

// Event is the JSON body posted to a hook.
type Event struct {
	Event     EventType      `json:"event"`
	Timestamp string         `json:"timestamp"`
	RepoID    string         `json:"repo_id,omitempty"`
	UID       string         `json:"uid,omitempty"`
	CommitID  string         `json:"commit_id,omitempty"`
	ObjectID  string         `json:"object_id,omitempty"`
	StorageID string         `json:"storage_id,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Hook is one endpoint. An empty Events list or "*" matches every event.
type Hook struct {
	URL    string
	Secret string
	Events []EventType
}

func (h Hook) matches(event EventType) bool {
	if len(h.Events) == 0 {
		return true
	}
	for _, e := range h.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Options tune delivery.
type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	QueueSize  int
	Timeout    time.Duration
}

// DefaultOptions returns the default delivery options.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		QueueSize:  100,
		Timeout:    10 * time.Second,
	}
}

// Client delivers events to hooks from a background worker.
type Client struct {
	hooks  []Hook
	opts   Options
	http   *http.Client
	queue  chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed sync.Once
	log    *logging.Logger
}

type job struct {
	event Event
	hook  Hook
}

// NewClient starts a client for hooks. A client without hooks does nothing.
func NewClient(hooks []Hook, opts Options) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultOptions().QueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		hooks:  hooks,
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		queue:  make(chan job, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		log:    logging.WithFields(map[string]any{"component": "webhook"}),
	}
	if len(hooks) > 0 {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

func (c *Client) worker() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			for {
				select {
				case j := <-c.queue:
					c.deliver(j)
				default:
					return
				}
			}
		case j := <-c.queue:
			c.deliver(j)
		}
	}
}

func (c *Client) deliver(j job) {
	if err := c.sendSync(j); err != nil {
		c.log.WarnErr("webhook delivery failed", err, map[string]any{"event": string(j.event.Event), "url": j.hook.URL})
	}
}

// Notify queues event for every matching hook without blocking. Events are
// dropped when the queue is full.
func (c *Client) Notify(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	for _, h := range c.hooks {
		if !h.matches(event.Event) {
			continue
		}
		select {
		case c.queue <- job{event: event, hook: h}:
		default:
			c.log.Warn("webhook queue full, dropping event", map[string]any{"event": string(event.Event)})
		}
	}
}

// Send delivers event synchronously and returns the last delivery error.
func (c *Client) Send(event Event) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	var lastErr error
	for _, h := range c.hooks {
		if h.matches(event.Event) {
			if err := c.sendSync(job{event: event, hook: h}); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

func (c *Client) sendSync(j job) error {
	payload, err := json.Marshal(j.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return lastErr
			case <-time.After(c.opts.RetryDelay):
			}
		}

		req, err := http.NewRequest(http.MethodPost, j.hook.URL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "bit-webhook/1")
		req.Header.Set("X-Bit-Event", string(j.event.Event))
		if j.hook.Secret != "" {
			req.Header.Set("X-Bit-Signature", Sign(payload, j.hook.Secret))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return lastErr
}

// Sign returns the X-Bit-Signature value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Close drains queued events and stops the worker.
func (c *Client) Close() error {
	c.closed.Do(func() {
		c.cancel()
		c.wg.Wait()
	})
	return nil
}
