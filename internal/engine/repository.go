// Package engine is the sync engine: the Repository façade that owns the
// documents, the commit logs and the projections of one replica, and runs the
// push/pull protocol between clients and the authoritative server.
package engine

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/bit-project/bit/internal/audit"
	"github.com/bit-project/bit/internal/commitlog"
	"github.com/bit-project/bit/internal/document"
	"github.com/bit-project/bit/internal/integrity"
	"github.com/bit-project/bit/internal/lock"
	"github.com/bit-project/bit/internal/projection"
	"github.com/bit-project/bit/internal/repo"
	"github.com/bit-project/bit/internal/transport"
	"github.com/bit-project/bit/pkg/config"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/logging"
	"github.com/bit-project/bit/pkg/metrics"
	"github.com/bit-project/bit/pkg/model"
	"github.com/bit-project/bit/pkg/progress"
	"github.com/bit-project/bit/pkg/webhook"
)

// Options tune how a Repository is opened.
type Options struct {
	// Config overrides .bit/config.yaml.
	Config *config.Config
	// Projections receives every document change. Nil means no projections.
	Projections *projection.Set
	// Transport overrides the HTTP client a remote-mode repository dials.
	Transport transport.Transport
	// Metrics overrides the process-wide registry.
	Metrics *metrics.Registry
	// Progress reports multi-commit pull and push progress.
	Progress progress.Callback
	// NoCache disables the SQLite projection cache.
	NoCache bool
	// Ready is called with the bound address once Serve listens.
	Ready func(net.Addr)
}

// Repository is one replica. All operations serialize on a single mutex;
// on disk the repository is owned exclusively through a lease lock.
type Repository struct {
	mu sync.Mutex

	repo    *repo.Repo
	cfg     *config.Config
	details *model.RepoDetails
	log     *commitlog.Log
	docs    *document.Store

	projections *projection.Set
	cache       *projection.Cache

	serverAuth model.ServerAuthority
	clientAuth model.ClientAuthority
	verifier   model.Verifier

	transport transport.Transport
	audit     *audit.FileAppender
	hooks     *webhook.Client
	metrics   *metrics.Registry
	progress  progress.Callback
	ready     func(net.Addr)

	locks     *lock.Manager
	lockNonce string
	logger    *logging.Logger

	// remoteCommits backs the remote log size gauge while serving.
	remoteCommits int
	// unapplied is set when a merged commit was logged but its documents
	// were not all written.
	unapplied bool
	// projectionErrors holds the last replay failure of each record that is
	// missing from its projection.
	projectionErrors map[model.ObjectID]string
}

// Init creates a repository at path in mode and opens it. opts.Config, when
// set, is saved as the repository configuration.
func Init(path string, mode model.Mode, opts Options) (*Repository, error) {
	r, err := repo.Init(path, model.NewRepoDetails(mode))
	if err != nil {
		return nil, err
	}
	if _, err := commitlog.Init(r.Store()); err != nil {
		return nil, err
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Mode = string(mode.Kind)
	cfg.RemoteURL = mode.RemoteURL
	cfg.BindAddress = mode.BindAddress
	if err := config.Save(path, cfg); err != nil {
		return nil, err
	}
	opts.Config = cfg

	repository, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	repository.record(model.AuditRecord{
		EventType: model.EventTypeRepoInit,
		Details:   map[string]any{"mode": mode.String(), "repo_id": r.RepoID},
	})
	repository.logger.Info("repository initialized", map[string]any{"path": path})
	return repository, nil
}

// Open loads the repository rooted at path and takes ownership of it.
func Open(path string, opts Options) (*Repository, error) {
	r, err := repo.Open(path)
	if err != nil {
		return nil, err
	}
	cfg := opts.Config
	if cfg == nil {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	details, err := r.LoadDetails()
	if err != nil {
		return nil, err
	}

	locks := lock.NewManager(r.Path(repo.LockFile), lock.DefaultTTL)
	held, err := locks.Acquire("open")
	if err != nil {
		return nil, err
	}

	repository := &Repository{
		repo:        r,
		cfg:         cfg,
		details:     details,
		docs:        document.NewStore(r.Store()),
		projections: opts.Projections,
		audit:       audit.NewFileAppender(r.Path(repo.AuditFile)),
		metrics:     opts.Metrics,
		progress:    opts.Progress,
		ready:       opts.Ready,
		locks:       locks,
		lockNonce:   held.HolderNonce,

		projectionErrors: make(map[model.ObjectID]string),
		logger: logging.WithFields(map[string]any{
			"repo_id": r.RepoID,
			"mode":    details.Mode.String(),
		}),
	}
	if err := repository.setup(opts); err != nil {
		repository.Close()
		return nil, err
	}
	return repository, nil
}

func (r *Repository) setup(opts Options) error {
	var err error
	if r.log, err = commitlog.Open(r.repo.Store()); err != nil {
		return err
	}
	repaired, err := r.log.Repair()
	if err != nil {
		return err
	}
	if repaired {
		r.logger.Warn("commit index realigned with the commit logs")
	}

	mode := r.details.Mode
	if mode.IsServer() {
		keyFile := r.cfg.Signing.KeyFile
		if keyFile == "" {
			keyFile = r.repo.Path(repo.KeyFile)
		}
		signer, err := integrity.NewSigner(r.cfg.Signing.Scheme, keyFile)
		if err != nil {
			return err
		}
		if r.serverAuth, err = model.NewServerAuthority(mode, signer); err != nil {
			return err
		}
		r.verifier = signer
	} else {
		if r.clientAuth, err = model.NewClientAuthority(mode); err != nil {
			return err
		}
		if r.verifier, err = integrity.NewVerifier(r.cfg.Signing.Scheme, r.cfg.Signing.PublicKey); err != nil {
			return err
		}
	}

	r.transport = opts.Transport
	if r.transport == nil && mode.IsRemote() {
		if r.transport, err = r.dial(); err != nil {
			return err
		}
	}

	if r.metrics == nil {
		r.metrics = metrics.Default()
	}
	if r.progress == nil {
		r.progress = progress.Noop
	}
	if r.projections == nil {
		r.projections = projection.NewSet()
	}
	if !opts.NoCache && len(r.projections.StorageIDs()) > 0 {
		if r.cache, err = projection.OpenCache(r.repo.Path(repo.IndexDBFile)); err != nil {
			return err
		}
		if err := r.projections.AttachCache(r.cache); err != nil {
			return err
		}
	}
	if mode.IsServer() {
		if _, err := r.applyRemoteLog(); err != nil {
			return fmt.Errorf("apply remote log: %w", err)
		}
	}
	// Cached refs whose cursor still matches are left alone.
	if len(r.projections.StorageIDs()) > 0 {
		docs, err := r.loadAll()
		if err != nil {
			return err
		}
		for _, d := range docs {
			r.refreshProjection(d)
		}
	}

	hooks := make([]webhook.Hook, 0, len(r.cfg.Webhooks))
	for _, w := range r.cfg.Webhooks {
		h := webhook.Hook{URL: w.URL, Secret: w.Secret}
		for _, e := range w.Events {
			h.Events = append(h.Events, webhook.EventType(e))
		}
		hooks = append(hooks, h)
	}
	r.hooks = webhook.NewClient(hooks, webhook.DefaultOptions())
	return nil
}

func (r *Repository) dial() (transport.Transport, error) {
	var token string
	if r.cfg.Auth.Secret != "" {
		var err error
		token, err = transport.IssueToken(r.cfg.Auth.Secret, r.cfg.User, r.cfg.Auth.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
	}
	return transport.NewClient(r.details.Mode.RemoteURL, transport.ClientOptions{
		Token:   token,
		Timeout: r.cfg.Transport.Timeout,
	})
}

// Close flushes webhooks, closes the projection cache and releases the lock.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.hooks != nil {
		errs = append(errs, r.hooks.Close())
		r.hooks = nil
	}
	if r.cache != nil {
		errs = append(errs, r.cache.Close())
		r.cache = nil
	}
	if r.lockNonce != "" {
		errs = append(errs, r.locks.Release(r.lockNonce))
		r.lockNonce = ""
	}
	return errors.Join(errs...)
}

func (r *Repository) Root() string     { return r.repo.Root }
func (r *Repository) RepoID() string   { return r.repo.RepoID }
func (r *Repository) UID() string      { return r.cfg.User }
func (r *Repository) Mode() model.Mode { return r.details.Mode }

// Config returns the configuration the repository was opened with.
func (r *Repository) Config() *config.Config { return r.cfg }

// PublicKey returns the hex key clients verify remote signatures with, or ""
// when the signing scheme is keyless.
func (r *Repository) PublicKey() string {
	if k, ok := r.verifier.(interface{ PublicKey() string }); ok {
		return k.PublicKey()
	}
	return ""
}

// Projections returns the projection set driven by this repository.
func (r *Repository) Projections() *projection.Set { return r.projections }

// Index returns the commit log cursors.
func (r *Repository) Index() model.CommitIndex {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.Index()
}

// ObjectIDs returns every known record.
func (r *Repository) ObjectIDs() []model.ObjectID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.details.ObjectIDs()
}

// Document loads the document of id.
func (r *Repository) Document(id model.ObjectID) (*document.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.details.Has(id) {
		return nil, errclass.ErrDocumentNotFound.WithMessagef("record %s", id)
	}
	return r.docs.Load(id)
}

// History returns the actions of id in log order.
func (r *Repository) History(id model.ObjectID) ([]*model.ActionObject, error) {
	d, err := r.Document(id)
	if err != nil {
		return nil, err
	}
	return d.Actions, nil
}

// Log returns the local or the remote commit log.
func (r *Repository) Log(local bool) ([]*model.Commit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if local {
		return r.log.LoadLocals()
	}
	return r.log.LoadRemotes()
}

// StatusReport summarizes the replica.
type StatusReport struct {
	Mode         string            `json:"mode"`
	UID          string            `json:"uid"`
	Index        model.CommitIndex `json:"index"`
	Documents    int               `json:"documents"`
	Staged       int               `json:"staged"`
	LocalCommits int               `json:"local_commits"`
	Conflicts    []model.ObjectID  `json:"conflicts,omitempty"`
	// Unprojected lists records whose actions the reducer rejected, with the
	// error. Their documents and commits are intact.
	Unprojected map[model.ObjectID]string `json:"unprojected,omitempty"`
}

// Status reports the commit cursors, pending work and conflicted documents.
func (r *Repository) Status() (*StatusReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	locals, err := r.log.LoadLocals()
	if err != nil {
		return nil, err
	}
	report := &StatusReport{
		Mode:         r.details.Mode.String(),
		UID:          r.cfg.User,
		Index:        r.log.Index(),
		Documents:    len(r.details.Documents),
		LocalCommits: len(locals),
	}
	for _, id := range r.details.ObjectIDs() {
		d, err := r.docs.Load(id)
		if err != nil {
			return nil, err
		}
		report.Staged += len(d.StagingActions())
		if d.IsConflict() {
			report.Conflicts = append(report.Conflicts, id)
		}
	}
	if len(r.projectionErrors) > 0 {
		report.Unprojected = maps.Clone(r.projectionErrors)
	}
	return report, nil
}

func sortedIDs[V any](m map[model.ObjectID]V) []model.ObjectID {
	ids := slices.Collect(maps.Keys(m))
	slices.Sort(ids)
	return ids
}

// loadAll returns every known document in object id order.
func (r *Repository) loadAll() ([]*document.Document, error) {
	ids := r.details.ObjectIDs()
	docs := make([]*document.Document, 0, len(ids))
	for _, id := range ids {
		d, err := r.docs.Load(id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (r *Repository) requireRemote(op string) error {
	if !r.details.Mode.IsRemote() {
		return errclass.ErrModeUnsupported.WithMessagef("%s needs remote mode, repository is %s", op, r.details.Mode)
	}
	if r.transport == nil {
		return errclass.ErrModeUnsupported.WithMessagef("%s: no transport configured", op)
	}
	return nil
}

func (r *Repository) requireServer(op string) error {
	if !r.details.Mode.IsServer() {
		return errclass.ErrModeUnsupported.WithMessagef("%s needs server mode, repository is %s", op, r.details.Mode)
	}
	return nil
}

func (r *Repository) requireClient(op string) error {
	if r.details.Mode.IsServer() {
		return errclass.ErrModeUnsupported.WithMessagef("%s is not available in server mode", op)
	}
	return nil
}

// renewLock keeps the ownership lease alive for long-running operations.
func (r *Repository) renewLock(done <-chan struct{}) {
	ticker := time.NewTicker(lock.DefaultTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			nonce := r.lockNonce
			r.mu.Unlock()
			if nonce == "" {
				return
			}
			if _, err := r.locks.Renew(nonce); err != nil {
				r.logger.WarnErr("renew repository lock", err)
			}
		}
	}
}
