package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bit-project/bit/pkg/color"
)

var (
	jsonOutput bool
	noColor    bool
	repoPath   string
	rootCmd    = &cobra.Command{
		Use:   "bit",
		Short: "bit - replicated bookkeeping records",
		Long: `bit keeps accounts, partners and notes as append-only action logs.

A server repository signs and orders every accepted change. Remote
repositories work offline, commit locally and synchronize with push and
pull; concurrent edits to the same record are detected, never merged
silently.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "C", "", "repository path (default: discover from the working directory)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmtErr("%s", describeError(err))
		os.Exit(1)
	}
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printOr prints v as JSON under --json and calls text otherwise.
func printOr(v any, text func()) error {
	if jsonOutput {
		return outputJSON(v)
	}
	text()
	return nil
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
