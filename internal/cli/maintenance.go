package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bit-project/bit/pkg/bit"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/errclass"
	"github.com/bit-project/bit/pkg/model"
)

var cleanForce bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Discard all unconfirmed local work",
	Long: `Discard every staged action and every unpushed commit, forget records
that never reached the server, then pull.

This cannot be undone. Use --force to confirm.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cleanForce {
			return fmt.Errorf("clean discards unpushed work; rerun with %s", code("--force"))
		}
		return withClient(func(c *bit.Client) error {
			res, err := c.Clean(cmd.Context())
			if err != nil {
				return err
			}
			return printOr(res, func() {
				printf("Dropped %d action(s) and %d commit(s)\n", res.DroppedActions, res.DroppedCommits)
				if n := len(res.ForgottenRecords); n > 0 {
					printf("Forgot %d record(s) that never reached the server\n", n)
				}
				if res.Pulled > 0 {
					printf("Pulled %d commit(s)\n", res.Pulled)
				}
			})
		})
	},
}

var rebaseCmd = &cobra.Command{
	Use:   "rebase <code|id>",
	Short: "Move a conflicted record's local actions onto the server's",
	Long: `Resolve a conflict by moving the local actions of a record after the
newest signed action. The actions keep their payloads; their parents and
timestamps change, and the unpushed commits carrying them are rewritten.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			moved, err := c.Rebase(args[0])
			if err != nil && len(moved) == 0 {
				return notFound(c, args[0], err)
			}
			ids := make([]model.ActionID, len(moved))
			for i, a := range moved {
				ids[i] = a.ID
			}
			if perr := printOr(map[string]any{"ref": args[0], "moved": ids}, func() {
				printf("Moved %d action(s) of %s\n", len(moved), color.ID(args[0]))
			}); perr != nil {
				return perr
			}
			if err != nil {
				return err
			}
			if !jsonOutput {
				printf("Run %s to send them.\n", code("bit push"))
			}
			return nil
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the record index from the documents",
	Long: `Drop every projection and the index.db cache, then replay all documents.

If index.db is unreadable and the repository will not open, run
bit doctor --repair drop_index_cache first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			if err := c.Reindex(); err != nil {
				return err
			}
			return printOr(map[string]any{"reindexed": true}, func() {
				printf("%s\n", color.Success("Index rebuilt."))
			})
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check signatures, chains and the audit trail",
	Long: `Check every remote commit and action signature, the ancestry of the
remote log, the action chain of every record and the audit hash chain.

The state hash covers signed state only: two replicas in sync print the
same hash.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			report, err := c.Verify()
			if err != nil {
				return err
			}
			if jsonOutput {
				outputJSON(report)
			} else {
				printf("Commits:  %d signed\n", report.RemoteCommits)
				printf("Records:  %d (%d signed, %d local actions)\n", report.Documents, report.RemoteActions, report.LocalActions)
				printf("Audit:    %d record(s)\n", report.AuditRecords)
				printf("State:    %s\n", color.ID(string(report.StateHash)))
				if report.OK() {
					printf("%s\n", color.Success("OK"))
				} else {
					tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					for _, p := range report.Problems {
						fmt.Fprintf(tw, "  %s\t%s\t%s\n", color.Error(p.Kind), color.ID(model.ShortID(p.ID)), p.Detail)
					}
					tw.Flush()
				}
			}
			if !report.OK() {
				return errclass.ErrVerifyFailed.WithMessagef("%d problem(s) found", len(report.Problems))
			}
			return nil
		})
	},
}

func init() {
	cleanCmd.Flags().BoolVarP(&cleanForce, "force", "f", false, "confirm discarding local work")
	rootCmd.AddCommand(cleanCmd, rebaseCmd, reindexCmd, verifyCmd)
}
