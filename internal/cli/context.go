package cli

import (
	"fmt"
	"os"

	"github.com/bit-project/bit/internal/repo"
	"github.com/bit-project/bit/pkg/bit"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/config"
	"github.com/bit-project/bit/pkg/logging"
	"github.com/bit-project/bit/pkg/progress"
)

// requireRepo discovers the repo from --repo or the working directory.
func requireRepo() (*repo.Repo, error) {
	start := repoPath
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot get current directory: %w", err)
		}
		start = cwd
	}
	return repo.Discover(start)
}

// withClient opens the repository, runs fn and releases the repository again.
func withClient(fn func(c *bit.Client) error) error {
	return withClientOptions(bit.OpenOptions{}, fn)
}

func withClientOptions(opts bit.OpenOptions, fn func(c *bit.Client) error) error {
	r, err := requireRepo()
	if err != nil {
		return err
	}
	cfg, err := config.Load(r.Root)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg); err != nil {
		return err
	}

	var term *progress.Terminal
	if !jsonOutput {
		term = progress.NewTerminal(os.Stderr)
		opts.Progress = term.Callback()
	}
	c, err := bit.Open(r.Root, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	err = fn(c)
	if term != nil {
		term.Done()
	}
	return err
}

// setupLogging installs the global logger configured for the repository.
// Logs go to stderr so stdout stays parseable under --json.
func setupLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return err
	}
	l := logging.NewLogger(level)
	l.SetFormat(format)
	l.SetOutput(os.Stderr)
	logging.SetGlobal(l)
	return nil
}

func fmtErr(format string, args ...any) {
	prefix := "bit: "
	if color.Enabled() {
		prefix = color.Error("bit:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
