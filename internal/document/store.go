package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/fsutil"
	"github.com/bit-project/bit/pkg/model"
	"github.com/bit-project/bit/pkg/pathutil"
)

const dir = "documents"

// Store persists one JSON file per document under documents/.
type Store struct {
	fs fsutil.Store
}

// NewStore returns a document store on top of fs.
func NewStore(fs fsutil.Store) *Store {
	return &Store{fs: fs}
}

func name(id model.ObjectID) (string, error) {
	if err := pathutil.ValidateObjectID(string(id)); err != nil {
		return "", err
	}
	return dir + "/" + string(id) + ".json", nil
}

// Load reads the document of record id.
func (s *Store) Load(id model.ObjectID) (*Document, error) {
	n, err := name(id)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.Read(n)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errclass.ErrDocumentNotFound.WithMessagef("document %s", id)
		}
		return nil, fmt.Errorf("read document %s: %w", id, err)
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse document %s: %w", id, err)
	}
	if d.Actions == nil {
		d.Actions = []*model.ActionObject{}
	}
	return &d, nil
}

// Save atomically writes d.
func (s *Store) Save(d *Document) error {
	n, err := name(d.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", d.ID, err)
	}
	if err := s.fs.Write(n, data); err != nil {
		return fmt.Errorf("write document %s: %w", d.ID, err)
	}
	return nil
}

// Exists reports whether a document file is present.
func (s *Store) Exists(id model.ObjectID) bool {
	n, err := name(id)
	return err == nil && s.fs.Exists(n)
}

// Remove deletes the document file.
func (s *Store) Remove(id model.ObjectID) error {
	n, err := name(id)
	if err != nil {
		return err
	}
	return s.fs.Remove(n)
}

// IDs lists the stored documents, sorted.
func (s *Store) IDs() ([]model.ObjectID, error) {
	names, err := s.fs.List(dir)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	ids := make([]model.ObjectID, 0, len(names))
	for _, n := range names {
		if id, ok := strings.CutSuffix(n, ".json"); ok {
			ids = append(ids, model.ObjectID(id))
		}
	}
	return ids, nil
}
