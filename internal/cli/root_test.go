package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bit-project/bit/pkg/errclass"
)

// resetFlags restores every flag to its default so tests sharing rootCmd
// do not see each other's values.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCommand(root *cobra.Command, args ...string) (stdout string, err error) {
	// Capture os.Stdout since the commands print directly
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	resetFlags(root)
	root.SetArgs(args)
	err = root.Execute()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), err
}

func setupTestDir(t *testing.T) string {
	dir := t.TempDir()
	originalWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(originalWd)
	})
	return dir
}

// initRepo creates a local repository in a fresh working directory.
func initRepo(t *testing.T) string {
	dir := setupTestDir(t)
	_, err := executeCommand(rootCmd, "init", "--user", "alice", "--no-color")
	require.NoError(t, err)
	return dir
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeCommand(rootCmd, append([]string{"--no-color"}, args...)...)
	require.NoError(t, err, "bit %v", args)
	return out
}

func runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out := run(t, append([]string{"--json"}, args...)...)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func TestRootCommand_Help(t *testing.T) {
	stdout, err := executeCommand(rootCmd, "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "bookkeeping")
}

func TestRootCommand_JSONFlag(t *testing.T) {
	_, err := executeCommand(rootCmd, "--json", "--help")
	require.NoError(t, err)
	assert.True(t, jsonOutput)
}

func TestInitCommand_CreatesRepo(t *testing.T) {
	setupTestDir(t)
	stdout, err := executeCommand(rootCmd, "--no-color", "init", "books")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Initialized bit repository")
	assert.Contains(t, stdout, "local")

	_, statErr := os.Stat(filepath.Join("books", ".bit"))
	assert.NoError(t, statErr)
}

func TestInitCommand_RejectsUnknownMode(t *testing.T) {
	setupTestDir(t)
	_, err := executeCommand(rootCmd, "init", "--mode", "mirror")
	assert.ErrorContains(t, err, "unknown mode")
}

func TestInitCommand_Ed25519RemoteNeedsPublicKey(t *testing.T) {
	setupTestDir(t)
	_, err := executeCommand(rootCmd, "init", "--mode", "remote", "--remote", "http://127.0.0.1:1", "--scheme", "ed25519")
	assert.ErrorContains(t, err, "--public-key")
}

func TestInitCommand_ServerPrintsPublicKey(t *testing.T) {
	setupTestDir(t)
	var res map[string]string
	runJSON(t, &res, "init", "--mode", "server", "--bind", "127.0.0.1:0", "--scheme", "ed25519")
	assert.Equal(t, "server", res["mode"])
	assert.Len(t, res["public_key"], 64)
}

func TestOutsideRepository(t *testing.T) {
	setupTestDir(t)
	_, err := executeCommand(rootCmd, "status")
	require.Error(t, err)
	assert.ErrorIs(t, err, errclass.ErrNotARepository)
	assert.Contains(t, describeError(err), "bit init")
}

func TestAccountCommands(t *testing.T) {
	initRepo(t)

	out := run(t, "account", "add", "311", "Bank")
	assert.Contains(t, out, "Added account 311")
	run(t, "account", "add", "466", "VAT receivable")

	_, err := executeCommand(rootCmd, "account", "add", "311", "Again")
	assert.ErrorIs(t, err, errclass.ErrDocumentExists)

	run(t, "account", "rename", "311", "Main bank")
	run(t, "account", "remove", "466")

	var rows []listRow
	runJSON(t, &rows, "account", "list")
	require.Len(t, rows, 1)
	assert.Equal(t, "311", rows[0].Code)
	assert.Equal(t, "Main bank", rows[0].Name)

	runJSON(t, &rows, "account", "list", "--all")
	assert.Len(t, rows, 2)

	// Removed records are only reachable by id.
	_, err = executeCommand(rootCmd, "account", "restore", "466")
	require.Error(t, err)
	assert.ErrorIs(t, err, errclass.ErrDocumentNotFound)
	run(t, "account", "restore", string(rows[1].ID))

	runJSON(t, &rows, "account", "list")
	assert.Len(t, rows, 2)
}

func TestNotFoundSuggestsCodes(t *testing.T) {
	initRepo(t)
	run(t, "partner", "add", "acme", "Acme Ltd")

	_, err := executeCommand(rootCmd, "partner", "rename", "ac", "X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme (partner)")
}

func TestNoteCommands(t *testing.T) {
	initRepo(t)
	run(t, "account", "add", "311", "Bank")
	run(t, "account", "add", "454", "Suppliers")
	run(t, "partner", "add", "acme", "Acme Ltd")
	run(t, "note", "add", "INV-7")
	run(t, "note", "set", "INV-7", "--partner", "acme", "--idate", "2024-03-01", "--net", "100", "--vat", "27", "--gross", "127")
	run(t, "note", "tx", "INV-7", "454", "311", "127", "-m", "paid")

	var note struct {
		Code         string `json:"code"`
		Gross        string `json:"gross"`
		IssueDate    string `json:"idate"`
		Transactions []struct {
			Amount  string `json:"amount"`
			Comment string `json:"comment"`
		} `json:"transactions"`
	}
	runJSON(t, &note, "note", "show", "INV-7")
	assert.Equal(t, "INV-7", note.Code)
	assert.Equal(t, "127", note.Gross)
	require.Len(t, note.Transactions, 1)
	assert.Equal(t, "paid", note.Transactions[0].Comment)

	out := run(t, "note", "show", "INV-7")
	assert.Contains(t, out, "Acme Ltd")
	assert.Contains(t, out, "454")
	assert.NotContains(t, out, "does not equal gross")

	run(t, "note", "unset", "INV-7", "gross")
	out = run(t, "note", "show", "INV-7")
	assert.Contains(t, out, "does not equal gross")

	_, err := executeCommand(rootCmd, "note", "unset", "INV-7", "colour")
	assert.Error(t, err)
	_, err = executeCommand(rootCmd, "note", "set", "INV-7", "--net", "lots")
	assert.ErrorContains(t, err, "--net")
}

func TestCommitStatusAndLog(t *testing.T) {
	initRepo(t)

	_, err := executeCommand(rootCmd, "commit")
	assert.ErrorIs(t, err, errclass.ErrNothingToCommit)

	run(t, "account", "add", "311", "Bank")
	run(t, "account", "add", "312", "Petty cash")

	var status struct {
		Staged       int `json:"staged"`
		LocalCommits int `json:"local_commits"`
		Documents    int `json:"documents"`
	}
	runJSON(t, &status, "status")
	assert.Equal(t, 2, status.Staged)
	assert.Equal(t, 2, status.Documents)

	out := run(t, "commit", "-m", "opening accounts")
	assert.Contains(t, out, "opening accounts")

	runJSON(t, &status, "status")
	assert.Equal(t, 0, status.Staged)
	assert.Equal(t, 1, status.LocalCommits)

	var commits []struct {
		Comment string `json:"comment"`
		UID     string `json:"uid"`
	}
	runJSON(t, &commits, "log", "--local")
	require.Len(t, commits, 1)
	assert.Equal(t, "opening accounts", commits[0].Comment)
	assert.Equal(t, "alice", commits[0].UID)

	var history []struct {
		Marker      string `json:"marker"`
		Description string `json:"description"`
	}
	runJSON(t, &history, "history", "311")
	require.Len(t, history, 1)
	assert.Equal(t, "L", history[0].Marker)
	assert.Contains(t, history[0].Description, "311")
}

func TestSyncCommandsNeedRemoteMode(t *testing.T) {
	initRepo(t)
	_, err := executeCommand(rootCmd, "push")
	assert.ErrorIs(t, err, errclass.ErrModeUnsupported)
	_, err = executeCommand(rootCmd, "pull")
	assert.ErrorIs(t, err, errclass.ErrModeUnsupported)
}

func TestCleanNeedsForce(t *testing.T) {
	initRepo(t)
	_, err := executeCommand(rootCmd, "clean")
	assert.ErrorContains(t, err, "--force")
}

func TestVerifyAndReindex(t *testing.T) {
	initRepo(t)
	run(t, "account", "add", "311", "Bank")
	run(t, "commit")

	var report struct {
		StateHash string `json:"state_hash"`
		Problems  []any  `json:"problems"`
	}
	runJSON(t, &report, "verify")
	assert.NotEmpty(t, report.StateHash)
	assert.Empty(t, report.Problems)

	out := run(t, "reindex")
	assert.Contains(t, out, "Index rebuilt")

	var rows []listRow
	runJSON(t, &rows, "account", "list")
	assert.Len(t, rows, 1)
}

func TestConfigCommands(t *testing.T) {
	initRepo(t)

	out := run(t, "config", "get", "user")
	assert.Equal(t, "alice\n", out)

	run(t, "config", "set", "transport.retries", "5")
	out = run(t, "config", "get", "transport.retries")
	assert.Equal(t, "5\n", out)

	_, err := executeCommand(rootCmd, "config", "set", "mode", "server")
	assert.Error(t, err)
	_, err = executeCommand(rootCmd, "config", "set", "logging.level", "loud")
	assert.Error(t, err)

	run(t, "config", "set", "auth.secret", "s3cret")
	var values map[string]string
	runJSON(t, &values, "config", "show")
	assert.Equal(t, "(set)", values["auth.secret"])
	assert.Equal(t, "local", values["mode"])
}

func TestAuditAndLock(t *testing.T) {
	initRepo(t)
	run(t, "account", "add", "311", "Bank")
	run(t, "commit", "-m", "first")

	var records []struct {
		EventType string `json:"event_type"`
	}
	runJSON(t, &records, "audit", "--type", "commit")
	require.Len(t, records, 1)
	assert.Equal(t, "commit", records[0].EventType)

	var lock struct {
		State string `json:"state"`
	}
	runJSON(t, &lock, "lock", "status")
	assert.Equal(t, "free", lock.State)
}

func TestCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			var buf bytes.Buffer
			rootCmd.SetOut(&buf)
			t.Cleanup(func() { rootCmd.SetOut(nil) })
			_, err := executeCommand(rootCmd, "completion", shell)
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "bit")
		})
	}
	_, err := executeCommand(rootCmd, "completion", "tcsh")
	assert.Error(t, err)
}

func TestDoctorCommand(t *testing.T) {
	dir := initRepo(t)
	var report struct {
		Result struct {
			Healthy bool `json:"healthy"`
		} `json:"result"`
	}
	runJSON(t, &report, "doctor", "--strict")
	assert.True(t, report.Result.Healthy)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".bit", ".bit-tmp-x"), []byte("x"), 0644))
	out := run(t, "doctor")
	assert.Contains(t, out, "clean_tmp")
	out = run(t, "doctor", "--fix")
	assert.Contains(t, out, "repair clean_tmp: ok")
	assert.Contains(t, out, "Repository is healthy.")
}
