package bit

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/bit-project/bit/internal/books"
	"github.com/bit-project/bit/internal/engine"
	"github.com/bit-project/bit/internal/repo"
	"github.com/bit-project/bit/internal/transport"
	"github.com/bit-project/bit/pkg/config"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/metrics"
	"github.com/bit-project/bit/pkg/model"
	"github.com/bit-project/bit/pkg/progress"
)

// Client provides high-level bit operations on a repository.
type Client struct {
	repo  *engine.Repository
	books *books.Books
}

// InitOptions configures repository initialization.
type InitOptions struct {
	Mode   model.Mode     // Defaults to local
	User   string         // Acting uid; defaults to the config default
	Config *config.Config // Written to .bit/config.yaml; nil means defaults
	OpenOptions
}

// OpenOptions tune an opened repository.
type OpenOptions struct {
	Transport transport.Transport // Replaces the HTTP client in remote mode
	Metrics   *metrics.Registry
	Progress  progress.Callback
	NoCache   bool           // Replay projections instead of reading index.db
	Ready     func(net.Addr) // Called once Serve listens
}

func (o OpenOptions) engine(b *books.Books) engine.Options {
	return engine.Options{
		Projections: b.Set(),
		Transport:   o.Transport,
		Metrics:     o.Metrics,
		Progress:    o.Progress,
		NoCache:     o.NoCache,
		Ready:       o.Ready,
	}
}

// Init initializes a new bit repository at the given path.
func Init(path string, opts InitOptions) (*Client, error) {
	mode := opts.Mode
	if mode.Kind == "" {
		mode = model.LocalMode()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.User != "" {
		cfg.User = opts.User
	}

	b := books.New()
	eo := opts.OpenOptions.engine(b)
	eo.Config = cfg
	r, err := engine.Init(path, mode, eo)
	if err != nil {
		return nil, fmt.Errorf("bit init: %w", err)
	}
	return &Client{repo: r, books: b}, nil
}

// Open opens an existing bit repository at or above the given path.
func Open(path string, opts OpenOptions) (*Client, error) {
	root, err := repo.Discover(path)
	if err != nil {
		return nil, fmt.Errorf("bit open: %w", err)
	}
	b := books.New()
	r, err := engine.Open(root.Root, opts.engine(b))
	if err != nil {
		return nil, fmt.Errorf("bit open: %w", err)
	}
	return &Client{repo: r, books: b}, nil
}

// OpenOrInit opens an existing repository, or initializes a new one if none exists.
func OpenOrInit(path string, opts InitOptions) (*Client, error) {
	if info, err := os.Stat(filepath.Join(path, repo.BitDirName)); err == nil && info.IsDir() {
		return Open(path, opts.OpenOptions)
	}
	return Init(path, opts)
}

// Close releases the repository.
func (c *Client) Close() error { return c.repo.Close() }

// Repository exposes the sync engine underneath the bookkeeping API.
func (c *Client) Repository() *engine.Repository { return c.repo }

// Books exposes the record projections.
func (c *Client) Books() *books.Books { return c.books }

// RepoRoot returns the absolute path to the repository root.
func (c *Client) RepoRoot() string { return c.repo.Root() }

// RepoID returns the unique repository identifier.
func (c *Client) RepoID() string { return c.repo.RepoID() }

// Mode returns the stored role of the repository.
func (c *Client) Mode() model.Mode { return c.repo.Mode() }

// create records act unless a live record of its type already has its code.
// The code check and the write happen under the same repository lock.
func (c *Client) create(act books.Action) (model.ObjectID, error) {
	storageID := act.Type.StorageID()
	kind, err := act.Kind()
	if err != nil {
		return "", err
	}
	a, err := c.repo.CreateRecord(storageID, kind, func() error {
		if c.books.CodeTaken(storageID, act.Code) {
			return errclass.ErrDocumentExists.WithMessagef("%s %q already exists", storageID, act.Code)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return a.ObjectID, nil
}

func (c *Client) patch(id model.ObjectID, act books.Action, guards ...engine.Guard) error {
	kind, err := act.Kind()
	if err != nil {
		return err
	}
	_, err = c.repo.PatchRecord(id, kind, guards...)
	return err
}

// codeFree refuses the patch when a live record of storageID uses code.
func (c *Client) codeFree(storageID, code string) engine.Guard {
	return func() error {
		if c.books.CodeTaken(storageID, code) {
			return errclass.ErrDocumentExists.WithMessagef("%s code %q is in use again", storageID, code)
		}
		return nil
	}
}

// AddAccount records a new account. Codes are unique among live accounts.
func (c *Client) AddAccount(code, name string) (model.ObjectID, error) {
	return c.create(books.NewAccount(code, name))
}

// RenameAccount renames the account identified by object id or code.
func (c *Client) RenameAccount(ref, name string) error {
	id, _, err := c.books.Account(ref)
	if err != nil {
		return err
	}
	return c.patch(id, books.RenameAccount(name))
}

func (c *Client) RemoveAccount(ref string) error {
	id, acc, err := c.books.Account(ref)
	if err != nil {
		return err
	}
	if acc.Removed {
		return errclass.ErrInvalidAction.WithMessagef("account %s is already removed", acc.Code)
	}
	return c.patch(id, books.RemoveAccount())
}

func (c *Client) RestoreAccount(ref string) error {
	id, acc, err := c.books.Account(ref)
	if err != nil {
		return err
	}
	if !acc.Removed {
		return errclass.ErrInvalidAction.WithMessagef("account %s is not removed", acc.Code)
	}
	return c.patch(id, books.RestoreAccount(), c.codeFree(books.StorageAccount, acc.Code))
}

// AccountEntry is one account with its object id.
type AccountEntry struct {
	ID model.ObjectID `json:"id"`
	books.Account
}

// Accounts lists accounts ordered by code. Removed ones are included only
// when withRemoved is set.
func (c *Client) Accounts(withRemoved bool) []AccountEntry {
	var res []AccountEntry
	for id, a := range c.books.Accounts.All() {
		if a.Removed && !withRemoved {
			continue
		}
		res = append(res, AccountEntry{ID: id, Account: a})
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res
}

func (c *Client) AddPartner(code, name string) (model.ObjectID, error) {
	return c.create(books.NewPartner(code, name))
}

func (c *Client) RenamePartner(ref, name string) error {
	id, _, err := c.books.Partner(ref)
	if err != nil {
		return err
	}
	return c.patch(id, books.RenamePartner(name))
}

func (c *Client) RemovePartner(ref string) error {
	id, p, err := c.books.Partner(ref)
	if err != nil {
		return err
	}
	if p.Removed {
		return errclass.ErrInvalidAction.WithMessagef("partner %s is already removed", p.Code)
	}
	return c.patch(id, books.RemovePartner())
}

func (c *Client) RestorePartner(ref string) error {
	id, p, err := c.books.Partner(ref)
	if err != nil {
		return err
	}
	if !p.Removed {
		return errclass.ErrInvalidAction.WithMessagef("partner %s is not removed", p.Code)
	}
	return c.patch(id, books.RestorePartner(), c.codeFree(books.StoragePartner, p.Code))
}

// PartnerEntry is one partner with its object id.
type PartnerEntry struct {
	ID model.ObjectID `json:"id"`
	books.Partner
}

func (c *Client) Partners(withRemoved bool) []PartnerEntry {
	var res []PartnerEntry
	for id, p := range c.books.Partners.All() {
		if p.Removed && !withRemoved {
			continue
		}
		res = append(res, PartnerEntry{ID: id, Partner: p})
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res
}

func (c *Client) AddNote(code string) (model.ObjectID, error) {
	return c.create(books.NewNote(code))
}

// NoteInput is a note_set request. Partner is a partner object id or code.
type NoteInput struct {
	Partner string
	books.NoteValues
}

// SetNote writes the non-nil fields of in.
func (c *Client) SetNote(ref string, in NoteInput) error {
	id, _, err := c.books.Note(ref)
	if err != nil {
		return err
	}
	v := in.NoteValues
	if in.Partner != "" {
		pid, _, err := c.books.Partner(in.Partner)
		if err != nil {
			return err
		}
		v.Partner = &pid
	}
	return c.patch(id, books.SetNote(v))
}

func (c *Client) UnsetNote(ref string, fields ...books.NoteField) error {
	id, _, err := c.books.Note(ref)
	if err != nil {
		return err
	}
	return c.patch(id, books.UnsetNote(fields...))
}

// AddTransaction books amount from credit to debit on a note. Accounts are
// given by object id or code and must not be removed.
func (c *Client) AddTransaction(ref, debit, credit string, amount decimal.Decimal, comment string) error {
	id, _, err := c.books.Note(ref)
	if err != nil {
		return err
	}
	tx := books.Transaction{Amount: amount, Comment: comment}
	for _, side := range []struct {
		ref string
		dst *model.ObjectID
	}{{debit, &tx.Debit}, {credit, &tx.Credit}} {
		aid, acc, err := c.books.Account(side.ref)
		if err != nil {
			return err
		}
		if acc.Removed {
			return errclass.ErrInvalidAction.WithMessagef("account %s is removed", acc.Code)
		}
		*side.dst = aid
	}
	return c.patch(id, books.AddTransaction(tx))
}

// NoteEntry is one note with its object id.
type NoteEntry struct {
	ID model.ObjectID `json:"id"`
	books.Note
}

func (c *Client) Note(ref string) (NoteEntry, error) {
	id, n, err := c.books.Note(ref)
	if err != nil {
		return NoteEntry{}, err
	}
	return NoteEntry{ID: id, Note: n}, nil
}

func (c *Client) Notes() []NoteEntry {
	var res []NoteEntry
	for id, n := range c.books.Notes.All() {
		res = append(res, NoteEntry{ID: id, Note: n})
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return res
}

// Resolve maps an object id or a record code to an object id.
func (c *Client) Resolve(ref string) (model.ObjectID, error) {
	if _, err := c.repo.Document(model.ObjectID(ref)); err == nil {
		return model.ObjectID(ref), nil
	}
	if id, _, err := c.books.Account(ref); err == nil {
		return id, nil
	}
	if id, _, err := c.books.Partner(ref); err == nil {
		return id, nil
	}
	if id, _, err := c.books.Note(ref); err == nil {
		return id, nil
	}
	return "", errclass.ErrDocumentNotFound.WithMessagef("no record %q", ref)
}

// Commit bundles every staged change. An empty message uses the configured
// template.
func (c *Client) Commit(message string) (*model.Commit, error) {
	return c.repo.Commit(message)
}

// Pull fetches and applies the server's new commits.
func (c *Client) Pull(ctx context.Context) (int, error) {
	return c.repo.ProceedPull(ctx)
}

// Push sends every local commit to the server.
func (c *Client) Push(ctx context.Context) (int, error) {
	return c.repo.ProceedPush(ctx)
}

// Serve runs the server until ctx is cancelled.
func (c *Client) Serve(ctx context.Context) error {
	return c.repo.Serve(ctx)
}

func (c *Client) Clean(ctx context.Context) (*engine.CleanResult, error) {
	return c.repo.Clean(ctx)
}

// Rebase resolves a conflicted record, given by object id or code.
func (c *Client) Rebase(ref string) ([]*model.ActionObject, error) {
	id, err := c.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return c.repo.Rebase(id)
}

// HistoryEntry is one action of a record with a readable description.
type HistoryEntry struct {
	*model.ActionObject
	Marker      string `json:"marker"`
	Description string `json:"description"`
}

// History returns the actions of a record in log order.
func (c *Client) History(ref string) ([]HistoryEntry, error) {
	id, err := c.Resolve(ref)
	if err != nil {
		return nil, err
	}
	actions, err := c.repo.History(id)
	if err != nil {
		return nil, err
	}
	res := make([]HistoryEntry, len(actions))
	for i, a := range actions {
		res[i] = HistoryEntry{ActionObject: a, Marker: a.Marker(), Description: books.Describe(a.Action)}
	}
	return res, nil
}

func (c *Client) Status() (*engine.StatusReport, error) { return c.repo.Status() }

func (c *Client) Log(local bool) ([]*model.Commit, error) { return c.repo.Log(local) }

func (c *Client) Verify() (*engine.VerifyReport, error) { return c.repo.Verify() }

func (c *Client) Reindex() error { return c.repo.Reindex() }

// PublicKey returns the hex key remote clients need for ed25519 signing, or "".
func (c *Client) PublicKey() string { return c.repo.PublicKey() }
