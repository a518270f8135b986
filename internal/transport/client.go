package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/gorilla/websocket"
)

// ClientOptions configures an HTTP client.
type ClientOptions struct {
	// Token is sent as a bearer token when non-empty.
	Token   string
	Timeout time.Duration
}

// Client speaks the wire protocol to a server over HTTP and websockets.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	dialer *websocket.Dialer
}

// NewClient returns a client for the server at remoteURL.
func NewClient(remoteURL string, opts ClientOptions) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(remoteURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse remote url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errclass.ErrModeUnsupported.WithMessagef("remote url %q must be http or https", remoteURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:  base,
		token: opts.Token,
		http:  &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			HandshakeTimeout:  timeout,
			ReadBufferSize:    64 * 1024,
			EnableCompression: true,
		},
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()
	return &u
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (c *Client) Pull(ctx context.Context, after *model.CommitID, fn func(*model.Commit) error) error {
	query := url.Values{}
	if after != nil {
		query.Set("after", string(*after))
	}
	u := c.endpoint("/v1/pull", query)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), c.header())
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return decodeError(resp)
			}
		}
		return errclass.ErrTransport.WithMessagef("dial %s: %v", u.Redacted(), err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return closeError(ctx, err)
		}
		var commit model.Commit
		if err := json.Unmarshal(data, &commit); err != nil {
			return errclass.ErrTransport.WithMessagef("malformed commit from server: %v", err)
		}
		if err := fn(&commit); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return err
		}
	}
}

// closeError turns the end of a pull stream into its result.
func closeError(ctx context.Context, err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		switch ce.Code {
		case websocket.CloseNormalClosure:
			return nil
		case CloseProtocolError:
			code, msg, _ := strings.Cut(ce.Text, " ")
			return errclass.FromCode(code, msg)
		}
	}
	if ctx.Err() != nil {
		return errclass.ErrTransport.WithMessagef("pull interrupted: %v", ctx.Err())
	}
	return errclass.ErrTransport.WithMessagef("pull stream: %v", err)
}

func (c *Client) Push(ctx context.Context, commit *model.Commit) (*model.Commit, error) {
	body, err := json.Marshal(commit)
	if err != nil {
		return nil, fmt.Errorf("encode commit %s: %w", commit.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/push", nil).String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build push request: %w", err)
	}
	req.Header = c.header()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errclass.ErrTransport.WithMessagef("push %s: %v", commit.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var signed model.Commit
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxCommitSize)).Decode(&signed); err != nil {
		return nil, errclass.ErrTransport.WithMessagef("malformed push reply: %v", err)
	}
	return &signed, nil
}

// decodeError rebuilds the error class of a failed response. Gateway and
// server failures without a class are transport errors.
func decodeError(resp *http.Response) error {
	var body errorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(data, &body); err == nil && body.Code != "" && body.Code != "E_INTERNAL" {
		return errclass.FromCode(body.Code, body.Message)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return errclass.ErrUnauthorized.WithMessage(resp.Status)
	}
	return errclass.ErrTransport.WithMessagef("server replied %s", resp.Status)
}
