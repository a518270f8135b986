// Package doctor checks the on-disk layout of a repository without opening
// it, so it still works when the engine refuses to start.
package doctor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bit-project/bit/internal/audit"
	"github.com/bit-project/bit/internal/commitlog"
	"github.com/bit-project/bit/internal/document"
	"github.com/bit-project/bit/internal/lock"
	"github.com/bit-project/bit/internal/repo"
	"github.com/bit-project/bit/pkg/model"
)

const tmpPrefix = ".bit-tmp-"

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // info, warning, error, critical
	Path        string `json:"path,omitempty"`
	Repair      string `json:"repair,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == "error" || f.Severity == "critical" {
		r.Healthy = false
	}
}

// RepairAction is one fix Repair can apply.
type RepairAction struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// RepairResult reports the outcome of one repair action.
type RepairResult struct {
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Doctor performs repository health checks.
type Doctor struct {
	r *repo.Repo
}

// NewDoctor creates a doctor for an opened repository layout.
func NewDoctor(r *repo.Repo) *Doctor {
	return &Doctor{r: r}
}

// Check runs all diagnostic checks. Strict also walks the audit hash chain.
func (d *Doctor) Check(strict bool) (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}

	d.checkFormatVersion(result)
	details, err := d.r.LoadDetails()
	if err != nil {
		result.add(Finding{Category: "details", Description: err.Error(), Severity: "critical", Path: d.r.Path(repo.DetailsFile)})
	} else {
		if err := details.Mode.Validate(); err != nil {
			result.add(Finding{Category: "details", Description: "invalid mode: " + err.Error(), Severity: "critical"})
		}
		d.checkDocuments(result, details)
	}
	d.checkCommitIndex(result)
	d.checkLock(result)
	if strict {
		d.checkAudit(result)
	}
	d.checkOrphanTmp(result)
	return result, nil
}

func (d *Doctor) checkFormatVersion(result *Result) {
	path := d.r.Path(repo.FormatVersionFile)
	if d.r.FormatVersion > repo.FormatVersion {
		result.add(Finding{
			Category:    "format",
			Description: fmt.Sprintf("format version %d > supported %d", d.r.FormatVersion, repo.FormatVersion),
			Severity:    "critical",
			Path:        path,
		})
	}
}

func (d *Doctor) checkDocuments(result *Result, details *model.RepoDetails) {
	store := document.NewStore(d.r.Store())
	onDisk, err := store.IDs()
	if err != nil {
		result.add(Finding{Category: "document", Description: err.Error(), Severity: "error"})
		return
	}
	seen := make(map[model.ObjectID]bool, len(onDisk))
	for _, id := range onDisk {
		seen[id] = true
		if !details.Has(id) {
			result.add(Finding{
				Category:    "document",
				Description: fmt.Sprintf("document %s is not listed in %s", id, repo.DetailsFile),
				Severity:    "warning",
				Repair:      "drop_orphan_documents",
			})
		}
	}
	for _, id := range details.ObjectIDs() {
		if !seen[id] {
			result.add(Finding{
				Category:    "document",
				Description: fmt.Sprintf("record %s has no document", id),
				Severity:    "error",
			})
			continue
		}
		doc, err := store.Load(id)
		if err != nil {
			result.add(Finding{Category: "document", Description: err.Error(), Severity: "error"})
			continue
		}
		if doc.StorageID != details.Documents[id] {
			result.add(Finding{
				Category:    "document",
				Description: fmt.Sprintf("record %s: storage id %q, details say %q", id, doc.StorageID, details.Documents[id]),
				Severity:    "error",
			})
		}
	}
}

func (d *Doctor) checkCommitIndex(result *Result) {
	log, err := commitlog.Open(d.r.Store())
	if err != nil {
		result.add(Finding{Category: "commits", Description: err.Error(), Severity: "critical", Path: d.r.Path(commitlog.IndexFile)})
		return
	}
	index := log.Index()
	for _, side := range []struct {
		name   string
		load   func() ([]*model.Commit, error)
		cursor *model.CommitID
	}{
		{"local", log.LoadLocals, index.LatestLocalCommitID},
		{"remote", log.LoadRemotes, index.LatestRemoteCommitID},
	} {
		commits, err := side.load()
		if err != nil {
			result.add(Finding{Category: "commits", Description: fmt.Sprintf("%s log: %v", side.name, err), Severity: "critical"})
			continue
		}
		var last *model.CommitID
		if n := len(commits); n > 0 {
			last = &commits[n-1].ID
		}
		if !model.SameCommitID(last, side.cursor) {
			result.add(Finding{
				Category:    "commits",
				Description: fmt.Sprintf("%s cursor %s does not match last %s commit %s", side.name, model.OptString(side.cursor), side.name, model.OptString(last)),
				Severity:    "warning",
				Repair:      "realign_index",
			})
		}
	}
}

func (d *Doctor) checkLock(result *Result) {
	rec, err := lock.NewManager(d.r.Path(repo.LockFile), lock.DefaultTTL).Status()
	if err != nil {
		result.add(Finding{Category: "lock", Description: err.Error(), Severity: "warning", Path: d.r.Path(repo.LockFile), Repair: "break_expired_lock"})
		return
	}
	if rec != nil && rec.IsExpired(time.Now()) {
		result.add(Finding{
			Category:    "lock",
			Description: fmt.Sprintf("expired lease of %s pid %d (since %s)", rec.Hostname, rec.PID, rec.ExpiresAt.Format(time.RFC3339)),
			Severity:    "info",
			Repair:      "break_expired_lock",
		})
	}
}

func (d *Doctor) checkAudit(result *Result) {
	if _, err := audit.NewFileAppender(d.r.Path(repo.AuditFile)).Verify(); err != nil {
		result.add(Finding{Category: "audit", Description: err.Error(), Severity: "critical", Path: d.r.Path(repo.AuditFile)})
	}
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	for _, path := range d.orphanTmp() {
		result.add(Finding{
			Category:    "tmp",
			Description: "orphan temp file: " + filepath.Base(path),
			Severity:    "info",
			Path:        path,
			Repair:      "clean_tmp",
		})
	}
}

func (d *Doctor) orphanTmp() []string {
	var paths []string
	filepath.WalkDir(d.r.BitDir(), func(path string, e fs.DirEntry, err error) error {
		if err == nil && !e.IsDir() && strings.HasPrefix(e.Name(), tmpPrefix) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths
}

// ListRepairActions returns the repairs Repair understands.
func (d *Doctor) ListRepairActions() []RepairAction {
	return []RepairAction{
		{ID: "clean_tmp", Description: "remove temp files left by interrupted writes"},
		{ID: "realign_index", Description: "point the commit index at the last entry of each log"},
		{ID: "drop_orphan_documents", Description: "delete documents that no record refers to"},
		{ID: "drop_index_cache", Description: "delete index.db so projections are replayed on open"},
		{ID: "break_expired_lock", Description: "remove an expired or unreadable ownership lease"},
	}
}

// Repair applies the named actions in order. The repository must not be
// open in another process.
func (d *Doctor) Repair(actions []string) ([]RepairResult, error) {
	results := make([]RepairResult, 0, len(actions))
	for _, id := range actions {
		var msg string
		var err error
		switch id {
		case "clean_tmp":
			msg, err = d.cleanTmp()
		case "realign_index":
			msg, err = d.realignIndex()
		case "drop_orphan_documents":
			msg, err = d.dropOrphanDocuments()
		case "drop_index_cache":
			msg, err = d.dropIndexCache()
		case "break_expired_lock":
			msg, err = d.breakExpiredLock()
		default:
			return results, fmt.Errorf("unknown repair action %q", id)
		}
		res := RepairResult{Action: id, Success: err == nil, Message: msg}
		if err != nil {
			res.Message = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

func (d *Doctor) cleanTmp() (string, error) {
	paths := d.orphanTmp()
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("removed %d temp file(s)", len(paths)), nil
}

func (d *Doctor) realignIndex() (string, error) {
	log, err := commitlog.Open(d.r.Store())
	if err != nil {
		return "", err
	}
	changed, err := log.Repair()
	if err != nil {
		return "", err
	}
	if !changed {
		return "index already aligned", nil
	}
	return "index realigned", nil
}

func (d *Doctor) dropOrphanDocuments() (string, error) {
	details, err := d.r.LoadDetails()
	if err != nil {
		return "", err
	}
	store := document.NewStore(d.r.Store())
	ids, err := store.IDs()
	if err != nil {
		return "", err
	}
	n := 0
	for _, id := range ids {
		if details.Has(id) {
			continue
		}
		if err := store.Remove(id); err != nil {
			return "", err
		}
		n++
	}
	return fmt.Sprintf("removed %d document(s)", n), nil
}

func (d *Doctor) dropIndexCache() (string, error) {
	err := os.Remove(d.r.Path(repo.IndexDBFile))
	if os.IsNotExist(err) {
		return "no index cache", nil
	}
	if err != nil {
		return "", err
	}
	return "index cache removed", nil
}

func (d *Doctor) breakExpiredLock() (string, error) {
	path := d.r.Path(repo.LockFile)
	rec, err := lock.NewManager(path, lock.DefaultTTL).Status()
	if err == nil && rec != nil && !rec.IsExpired(time.Now()) {
		return "", fmt.Errorf("lease of %s pid %d is still live", rec.Hostname, rec.PID)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	return "lease removed", nil
}
