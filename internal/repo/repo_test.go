package repo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bit-project/bit/internal/repo"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_CreatesLayout(t *testing.T) {
	dir := t.TempDir()
	r, err := repo.Init(dir, model.NewRepoDetails(model.RemoteMode("http://localhost:7420")))
	require.NoError(t, err)
	assert.Equal(t, repo.FormatVersion, r.FormatVersion)
	assert.NotEmpty(t, r.RepoID)

	for _, name := range []string{repo.FormatVersionFile, repo.RepoIDFile, repo.DetailsFile, repo.DocumentsDir, repo.CommitsDir, "audit", "locks"} {
		_, err := os.Stat(r.Path(name))
		assert.NoError(t, err, name)
	}

	details, err := r.LoadDetails()
	require.NoError(t, err)
	assert.True(t, details.Mode.IsRemote())
	assert.Equal(t, "http://localhost:7420", details.Mode.RemoteURL)
	assert.Empty(t, details.Documents)
}

func TestInit_AlreadyExists(t *testing.T) {
	dir := t.TempDir()
	_, err := repo.Init(dir, model.NewRepoDetails(model.LocalMode()))
	require.NoError(t, err)

	_, err = repo.Init(dir, model.NewRepoDetails(model.LocalMode()))
	assert.ErrorIs(t, err, errclass.ErrAlreadyExists)
}

func TestInit_InvalidMode(t *testing.T) {
	_, err := repo.Init(t.TempDir(), model.NewRepoDetails(model.ServerMode("")))
	assert.ErrorIs(t, err, errclass.ErrModeUnsupported)
}

func TestDetails_RoundTrip(t *testing.T) {
	r, err := repo.Init(t.TempDir(), model.NewRepoDetails(model.LocalMode()))
	require.NoError(t, err)

	d, err := r.LoadDetails()
	require.NoError(t, err)
	d.Add("0b8c3e3e-6a43-4b4c-9d7f-3f7c2d1e5a10", "account")
	require.NoError(t, r.SaveDetails(d))

	again, err := r.LoadDetails()
	require.NoError(t, err)
	assert.Equal(t, "account", again.Documents["0b8c3e3e-6a43-4b4c-9d7f-3f7c2d1e5a10"])
}

func TestDiscover_FindsRepoFromSubdir(t *testing.T) {
	dir := t.TempDir()
	r, err := repo.Init(dir, model.NewRepoDetails(model.LocalMode()))
	require.NoError(t, err)

	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0755))

	found, err := repo.Discover(sub)
	require.NoError(t, err)
	assert.Equal(t, r.RepoID, found.RepoID)
}

func TestDiscover_NotFound(t *testing.T) {
	_, err := repo.Discover(t.TempDir())
	assert.ErrorIs(t, err, errclass.ErrNotARepository)
}

func TestOpen_FutureFormat(t *testing.T) {
	dir := t.TempDir()
	r, err := repo.Init(dir, model.NewRepoDetails(model.LocalMode()))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(r.Path(repo.FormatVersionFile), []byte("99\n"), 0644))

	_, err = repo.Open(dir)
	assert.ErrorIs(t, err, errclass.ErrFormatUnsupported)
}

func TestStore_RootedAtBitDir(t *testing.T) {
	r, err := repo.Init(t.TempDir(), model.NewRepoDetails(model.LocalMode()))
	require.NoError(t, err)
	require.NoError(t, r.Store().Write("documents/x.json", []byte("{}")))
	_, err = os.Stat(r.Path("documents/x.json"))
	assert.NoError(t, err)
}
