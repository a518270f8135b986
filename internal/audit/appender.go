// Package audit keeps a hash-chained JSONL trail of sync events.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/jsonutil"
	"github.com/bit-project/bit/pkg/model"
)

const maxRecordSize = 1 << 20

// FileAppender appends audit records to a JSONL file with hash chain.
type FileAppender struct {
	path string
	mu   sync.Mutex
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{path: path}
}

// Path returns the log file location.
func (a *FileAppender) Path() string {
	return a.path
}

// Append links rec to the previous record and writes it. Timestamp,
// PrevHash and RecordHash are filled in.
func (a *FileAppender) Append(rec model.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return fmt.Errorf("flock audit log: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	rec.Timestamp = time.Now().UTC()
	rec.PrevHash = prevHash
	rec.RecordHash, err = computeRecordHash(&rec)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}

	line, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// Records returns every record in order. A missing log has no records.
func (a *FileAppender) Records() ([]model.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var records []model.AuditRecord
	err = scan(file, func(rec model.AuditRecord) error {
		records = append(records, rec)
		return nil
	})
	return records, err
}

// Verify walks the chain and returns the number of records checked. A
// rewritten, reordered or removed record fails with ErrAuditChainBroken.
func (a *FileAppender) Verify() (int, error) {
	records, err := a.Records()
	if err != nil {
		return 0, err
	}
	var prev model.HashValue
	for i := range records {
		rec := &records[i]
		if rec.PrevHash != prev {
			return i, errclass.ErrAuditChainBroken.WithMessagef("record %d: prev_hash does not match", i)
		}
		want, err := computeRecordHash(rec)
		if err != nil {
			return i, err
		}
		if want != rec.RecordHash {
			return i, errclass.ErrAuditChainBroken.WithMessagef("record %d: record_hash mismatch", i)
		}
		prev = rec.RecordHash
	}
	return len(records), nil
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}
	var last model.HashValue
	err := scan(file, func(rec model.AuditRecord) error {
		last = rec.RecordHash
		return nil
	})
	return last, err
}

func scan(r io.Reader, fn func(model.AuditRecord) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return errclass.ErrAuditChainBroken.WithMessagef("malformed audit record: %v", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan audit log: %w", err)
	}
	return nil
}

func computeRecordHash(rec *model.AuditRecord) (model.HashValue, error) {
	c := *rec
	c.RecordHash = ""

	data, err := jsonutil.CanonicalMarshal(&c)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}
	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}
