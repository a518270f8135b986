package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/logging"
	"github.com/bit-project/bit/pkg/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
)

const (
	// CloseProtocolError is the websocket close code carrying an error class.
	CloseProtocolError = 4000

	maxCommitSize = 64 << 20
)

// ServerOptions configures the HTTP binding of a Backend.
type ServerOptions struct {
	// Secret enables HS256 bearer authentication when non-empty.
	Secret string
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
	// AllowedOrigins enables CORS for the listed origins.
	AllowedOrigins []string
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type server struct {
	backend  Backend
	upgrader websocket.Upgrader
}

// NewHandler returns the router serving b.
func NewHandler(b Backend, opts ServerOptions) http.Handler {
	s := &server{
		backend: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    4096,
			WriteBufferSize:   64 * 1024,
			EnableCompression: true,
			CheckOrigin:       func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))
	}

	r.Get("/v1/health", s.health)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	r.Group(func(r chi.Router) {
		if opts.Secret != "" {
			r.Use(requireToken(opts.Secret))
		}
		r.Get("/v1/pull", s.pull)
		r.Post("/v1/push", s.push)
	})
	return r
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"head":   s.backend.Head(),
	})
}

func (s *server) push(w http.ResponseWriter, r *http.Request) {
	var c model.Commit
	dec := json.NewDecoder(io.LimitReader(r.Body, maxCommitSize))
	if err := dec.Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, errclass.ErrInvalidAction.WithMessagef("malformed commit: %v", err))
		return
	}
	if uid := UIDFrom(r.Context()); uid != "" && uid != c.UID {
		writeError(w, http.StatusForbidden, errclass.ErrUnauthorized.WithMessagef("token for %q cannot push commits of %q", uid, c.UID))
		return
	}

	signed, err := s.backend.MergePush(r.Context(), &c)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, signed)
}

func (s *server) pull(w http.ResponseWriter, r *http.Request) {
	var after *model.CommitID
	if v := r.URL.Query().Get("after"); v != "" {
		id := model.CommitID(v)
		after = &id
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		logging.WarnErr("websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	sent := 0
	err = s.backend.ServePull(r.Context(), after, func(c *model.Commit) error {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode commit %s: %w", c.ID, err)
		}
		sent++
		return conn.WriteMessage(websocket.TextMessage, data)
	})

	deadline := time.Now().Add(5 * time.Second)
	if err != nil {
		logging.WithFields(map[string]any{
			"after_commit_id": model.OptString(after),
			"sent":            sent,
		}).WarnErr("pull stream aborted", err)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(CloseProtocolError, closeReason(err)), deadline)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	// Wait for the peer's close reply so the final frames are not cut off.
	conn.SetReadDeadline(deadline)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// statusOf maps an error class to the HTTP status of a failed push.
func statusOf(err error) int {
	switch errclass.KindOf(err) {
	case errclass.KindStale:
		return http.StatusConflict
	case errclass.KindTransport:
		return http.StatusBadGateway
	}
	if errors.Is(err, errclass.ErrUnauthorized) || errors.Is(err, errclass.ErrRoleForbidden) {
		return http.StatusForbidden
	}
	return http.StatusUnprocessableEntity
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func bodyOf(err error) errorBody {
	body := errorBody{Code: errclass.Code(err), Message: err.Error()}
	var e *errclass.Error
	if errors.As(err, &e) {
		body.Message = e.Message
	}
	if body.Code == "" {
		body.Code = "E_INTERNAL"
	}
	return body
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, bodyOf(err))
}

// closeReason encodes err as "CODE message", within the 123 bytes a close
// frame allows.
func closeReason(err error) string {
	body := bodyOf(err)
	reason := body.Code + " " + body.Message
	if len(reason) > 120 {
		reason = strings.ToValidUTF8(reason[:120], "")
	}
	return reason
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
// ready, when non-nil, receives the bound address once listening.
func Serve(ctx context.Context, addr string, h http.Handler, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	if ready != nil {
		ready(ln.Addr())
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}
