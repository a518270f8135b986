package fsutil

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxRecordSize bounds a single JSONL record (a commit can carry many actions).
const maxRecordSize = 64 << 20

// ErrNotExist is returned when a named file is missing.
var ErrNotExist = fs.ErrNotExist

// Store is the byte-level persistence adapter the sync engine writes through.
// Names are slash-separated and relative to the store root.
type Store interface {
	// Read returns the whole content of name.
	Read(name string) ([]byte, error)
	// Write atomically replaces the content of name, creating parents.
	Write(name string, data []byte) error
	// Create makes an empty file, truncating an existing one.
	Create(name string) error
	// Append adds one record to an append-only file.
	Append(name string, record []byte) error
	// Scan calls fn for every record of an append-only file, in order.
	Scan(name string, fn func(record []byte) error) error
	// Exists reports whether name is present.
	Exists(name string) bool
	// Remove deletes name. Missing files are not an error.
	Remove(name string) error
	// List returns the sorted file names directly under dir.
	List(dir string) ([]string, error)
}

// Dir is a Store rooted at a directory on the local filesystem.
type Dir struct {
	root string
}

// NewDir returns a Store rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the directory the store is rooted at.
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) path(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("store path %q escapes root", name)
	}
	return filepath.Join(d.root, clean), nil
}

func (d *Dir) Read(name string) ([]byte, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (d *Dir) Write(name string, data []byte) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return AtomicWrite(p, data, 0644)
}

func (d *Dir) Create(name string) error {
	return d.Write(name, nil)
}

func (d *Dir) Append(name string, record []byte) error {
	if bytes.IndexByte(record, '\n') >= 0 {
		return fmt.Errorf("append %s: record contains a newline", name)
	}
	p, err := d.path(name)
	if err != nil {
		return err
	}
	return AppendLine(p, record)
}

func (d *Dir) Scan(name string, fn func(record []byte) error) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", name, err)
	}
	return nil
}

func (d *Dir) Exists(name string) bool {
	p, err := d.path(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

func (d *Dir) Remove(name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *Dir) List(dir string) ([]string, error) {
	p, err := d.path(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".bit-tmp-") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
