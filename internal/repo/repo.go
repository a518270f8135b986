// Package repo owns the on-disk layout of a bit repository.
package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/fsutil"
	"github.com/bit-project/bit/pkg/idutil"
	"github.com/bit-project/bit/pkg/model"
)

const (
	FormatVersion     = 1
	BitDirName        = ".bit"
	FormatVersionFile = "format_version"
	RepoIDFile        = "repo_id"
	DetailsFile       = "repo_details.json"
	DocumentsDir      = "documents"
	CommitsDir        = "commits"
	AuditFile         = "audit/audit.jsonl"
	LockFile          = "locks/repo.lock"
	IndexDBFile       = "index.db"
	KeyFile           = "keys/server.key"
)

// Repo represents an initialized bit repository.
type Repo struct {
	Root          string
	FormatVersion int
	RepoID        string
}

// Init creates a new repository at path with the given details. It fails
// with ErrAlreadyExists if path already holds one.
func Init(path string, details *model.RepoDetails) (*Repo, error) {
	if err := details.Mode.Validate(); err != nil {
		return nil, errclass.ErrModeUnsupported.WithMessage(err.Error())
	}

	bitDir := filepath.Join(path, BitDirName)
	if _, err := os.Stat(bitDir); err == nil {
		return nil, errclass.ErrAlreadyExists.WithMessagef("repository already exists at %s", path)
	}

	for _, dir := range []string{
		bitDir,
		filepath.Join(bitDir, DocumentsDir),
		filepath.Join(bitDir, CommitsDir),
		filepath.Join(bitDir, "audit"),
		filepath.Join(bitDir, "locks"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(filepath.Join(bitDir, FormatVersionFile), []byte(fmt.Sprintf("%d\n", FormatVersion)), 0644); err != nil {
		return nil, fmt.Errorf("write format_version: %w", err)
	}

	repoID := idutil.NewUUID()
	if err := os.WriteFile(filepath.Join(bitDir, RepoIDFile), []byte(repoID+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write repo_id: %w", err)
	}

	r := &Repo{Root: path, FormatVersion: FormatVersion, RepoID: repoID}
	if err := r.SaveDetails(details); err != nil {
		return nil, err
	}

	if err := fsutil.FsyncDir(path); err != nil {
		return nil, fmt.Errorf("fsync repo root: %w", err)
	}
	return r, nil
}

// Open opens the repository rooted exactly at path.
func Open(path string) (*Repo, error) {
	bitDir := filepath.Join(path, BitDirName)
	info, err := os.Stat(bitDir)
	if err != nil || !info.IsDir() {
		return nil, errclass.ErrNotARepository.WithMessagef("no %s directory in %s", BitDirName, path)
	}
	version, err := readFormatVersion(bitDir)
	if err != nil {
		return nil, err
	}
	if version > FormatVersion {
		return nil, errclass.ErrFormatUnsupported.WithMessagef(
			"format version %d > supported %d", version, FormatVersion)
	}
	repoID, _ := readRepoID(bitDir)
	return &Repo{Root: path, FormatVersion: version, RepoID: repoID}, nil
}

// Discover walks up from cwd to find the repo root (directory containing .bit/).
func Discover(cwd string) (*Repo, error) {
	path, err := filepath.Abs(cwd)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", cwd, err)
	}
	for {
		r, err := Open(path)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, errclass.ErrNotARepository) {
			return nil, err
		}
		parent := filepath.Dir(path)
		if parent == path {
			return nil, errclass.ErrNotARepository.WithMessage("no bit repository found (no .bit/ in parent directories)")
		}
		path = parent
	}
}

// BitDir returns the .bit directory.
func (r *Repo) BitDir() string {
	return filepath.Join(r.Root, BitDirName)
}

// Path resolves a slash-separated name inside .bit.
func (r *Repo) Path(name string) string {
	return filepath.Join(r.BitDir(), filepath.FromSlash(name))
}

// Store returns the persistence adapter rooted at .bit.
func (r *Repo) Store() fsutil.Store {
	return fsutil.NewDir(r.BitDir())
}

// LoadDetails reads repo_details.json.
func (r *Repo) LoadDetails() (*model.RepoDetails, error) {
	data, err := os.ReadFile(r.Path(DetailsFile))
	if err != nil {
		return nil, fmt.Errorf("read repo details: %w", err)
	}
	var d model.RepoDetails
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse repo details: %w", err)
	}
	if d.Documents == nil {
		d.Documents = make(map[model.ObjectID]string)
	}
	return &d, nil
}

// SaveDetails atomically writes repo_details.json.
func (r *Repo) SaveDetails(d *model.RepoDetails) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal repo details: %w", err)
	}
	if err := fsutil.AtomicWrite(r.Path(DetailsFile), data, 0644); err != nil {
		return fmt.Errorf("write repo details: %w", err)
	}
	return nil
}

func readFormatVersion(bitDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(bitDir, FormatVersionFile))
	if err != nil {
		return 0, errclass.ErrNotARepository.WithMessagef("read format_version: %v", err)
	}
	var version int
	if _, err := fmt.Sscanf(string(data), "%d", &version); err != nil {
		return 0, errclass.ErrFormatUnsupported.WithMessagef("parse format_version: %v", err)
	}
	return version, nil
}

func readRepoID(bitDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(bitDir, RepoIDFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
