package fsutil_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/bit-project/bit/pkg/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	require.NoError(t, fsutil.AtomicWrite(path, []byte("new"), 0644))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))

	entries, _ := os.ReadDir(dir)
	assert.Len(t, entries, 1, "no temp file may be left behind")
}

func TestDir_WriteCreatesParents(t *testing.T) {
	s := fsutil.NewDir(t.TempDir())
	require.NoError(t, s.Write("a/b/c.json", []byte(`{}`)))

	data, err := s.Read("a/b/c.json")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
	assert.True(t, s.Exists("a/b/c.json"))
}

func TestDir_AppendAndScanInOrder(t *testing.T) {
	s := fsutil.NewDir(t.TempDir())
	require.NoError(t, s.Create("log.jsonl"))
	for _, rec := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, s.Append("log.jsonl", []byte(rec)))
	}

	var got []string
	err := s.Scan("log.jsonl", func(record []byte) error {
		got = append(got, string(record))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}, got)
}

func TestDir_AppendRejectsNewline(t *testing.T) {
	s := fsutil.NewDir(t.TempDir())
	require.NoError(t, s.Create("log.jsonl"))
	assert.Error(t, s.Append("log.jsonl", []byte("a\nb")))
}

func TestDir_AppendMissingFile(t *testing.T) {
	s := fsutil.NewDir(t.TempDir())
	assert.Error(t, s.Append("missing.jsonl", []byte("x")))
}

func TestDir_ScanStopsOnError(t *testing.T) {
	s := fsutil.NewDir(t.TempDir())
	require.NoError(t, s.Create("log.jsonl"))
	require.NoError(t, s.Append("log.jsonl", []byte("1")))
	require.NoError(t, s.Append("log.jsonl", []byte("2")))

	stop := errors.New("stop")
	calls := 0
	err := s.Scan("log.jsonl", func([]byte) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestDir_RejectsEscape(t *testing.T) {
	s := fsutil.NewDir(t.TempDir())
	assert.Error(t, s.Write("../outside", []byte("x")))
	_, err := s.Read("../../etc/passwd")
	assert.Error(t, err)
}

func TestDir_ListAndRemove(t *testing.T) {
	s := fsutil.NewDir(t.TempDir())
	require.NoError(t, s.Write("docs/b.json", []byte("b")))
	require.NoError(t, s.Write("docs/a.json", []byte("a")))

	names, err := s.List("docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, names)

	require.NoError(t, s.Remove("docs/a.json"))
	require.NoError(t, s.Remove("docs/a.json"), "removing twice is fine")
	_, err = s.Read("docs/a.json")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	names, err = s.List("nothing-here")
	require.NoError(t, err)
	assert.Empty(t, names)
}
