package cli

import (
	"github.com/spf13/cobra"

	"github.com/bit-project/bit/pkg/bit"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/model"
)

var commitMessage string

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Bundle staged changes into a local commit",
	Long: `Bundle every staged change into one local commit.

Without -m the commit_message template from .bit/config.yaml is used
({user}, {date}, {time}, {datetime} and {count} are expanded).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			commit, err := c.Commit(commitMessage)
			if err != nil {
				return err
			}
			return printOr(commit, func() {
				printf("Committed %s %s\n", color.ID(model.ShortID(commit.ID)), commit.Comment)
				printf("  Actions: %d\n", len(commit.SerializedActions))
				if c.Mode().IsRemote() {
					printf("  Run %s to send it to the server.\n", code("bit push"))
				}
			})
		})
	},
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message")
	rootCmd.AddCommand(commitCmd)
}
