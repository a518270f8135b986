package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bit-project/bit/pkg/bit"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/model"
)

var (
	logLimit  int
	logGrep   string
	logLocal  bool
	histLimit int
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the commit log",
	Long: `Show the commit log, newest first.

By default the signed remote log is shown. Use --local for commits that
have not been pushed yet.

Examples:
  bit log                  # Signed commits
  bit log -n 10            # Last 10 signed commits
  bit log --grep invoice   # Filter by comment substring
  bit log --local          # Unpushed commits`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			commits, err := c.Log(logLocal)
			if err != nil {
				return err
			}
			commits = filterLog(commits)
			return printOr(commits, func() {
				if len(commits) == 0 {
					if logLocal {
						printf("No local commits.\n")
					} else {
						printf("No commits yet.\n")
					}
					return
				}
				head := c.Repository().Index().LatestRemoteCommitID
				for _, cm := range commits {
					marker := ""
					if head != nil && cm.ID == *head && !logLocal {
						marker = "  " + color.Header("[HEAD]")
					}
					comment := cm.Comment
					if comment == "" {
						comment = color.Dim("(no comment)")
					}
					printf("%s  %s  %s  %s%s\n",
						color.ID(model.ShortID(cm.ID)),
						color.Dim(cm.Dtime.Local().Format("2006-01-02 15:04")),
						cm.UID,
						comment,
						marker,
					)
					printf("          %s\n", color.Dim(fmt.Sprintf("%d action(s)", len(cm.SerializedActions))))
				}
			})
		})
	},
}

// filterLog reverses to newest first, then applies --grep and -n.
func filterLog(commits []*model.Commit) []*model.Commit {
	res := make([]*model.Commit, 0, len(commits))
	for i := len(commits) - 1; i >= 0; i-- {
		cm := commits[i]
		if logGrep != "" && !strings.Contains(cm.Comment, logGrep) {
			continue
		}
		res = append(res, cm)
		if logLimit > 0 && len(res) == logLimit {
			break
		}
	}
	return res
}

var historyCmd = &cobra.Command{
	Use:   "history <code|id>",
	Short: "Show every action recorded for one record",
	Long: `Show the actions of one record in log order.

Markers:
  R  signed by the server
  S  staged, not yet committed
  L  committed locally, not yet pushed`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			entries, err := c.History(args[0])
			if err != nil {
				return notFound(c, args[0], err)
			}
			if histLimit > 0 && len(entries) > histLimit {
				entries = entries[len(entries)-histLimit:]
			}
			return printOr(entries, func() {
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				for _, e := range entries {
					commit := "-"
					if e.CommitID != nil {
						commit = model.ShortID(*e.CommitID)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						color.Marker(e.Marker),
						color.ID(model.ShortID(e.ID)),
						color.Dim(e.Dtime.Local().Format("2006-01-02 15:04")),
						e.UID,
						e.Description,
						color.Dim(commit),
					)
				}
				tw.Flush()
			})
		})
	},
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 0, "limit number of commits shown")
	logCmd.Flags().StringVar(&logGrep, "grep", "", "filter by comment substring")
	logCmd.Flags().BoolVar(&logLocal, "local", false, "show unpushed local commits")
	historyCmd.Flags().IntVarP(&histLimit, "limit", "n", 0, "show only the last N actions")
	rootCmd.AddCommand(logCmd, historyCmd)
}
