package cli

import (
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/bit-project/bit/pkg/bit"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cursors, pending work and conflicts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			s, err := c.Status()
			if err != nil {
				return err
			}
			return printOr(s, func() {
				printf("%s %s\n", color.Header("Repository:"), c.RepoRoot())
				printf("  Mode:          %s\n", s.Mode)
				printf("  User:          %s\n", s.UID)
				printf("  Remote head:   %s\n", color.ID(model.OptString(s.Index.LatestRemoteCommitID)))
				printf("  Local head:    %s\n", color.ID(model.OptString(s.Index.LatestLocalCommitID)))
				printf("  Records:       %d\n", s.Documents)
				printf("  Staged:        %s\n", pending(s.Staged, "bit commit"))
				printf("  Local commits: %s\n", pending(s.LocalCommits, "bit push"))
				for _, id := range slices.Sorted(maps.Keys(s.Unprojected)) {
					printf("  %s %s %s\n", color.Warning("unreadable"), color.ID(string(id)), color.Dim(s.Unprojected[id]))
				}
				if len(s.Conflicts) == 0 {
					return
				}
				printf("\n%s\n", color.Status("conflict"))
				for _, id := range s.Conflicts {
					printf("  %s\n", color.ID(string(id)))
				}
				printf("\nResolve each with %s, or discard local work with %s.\n",
					code("bit rebase <id>"), code("bit clean"))
			})
		})
	},
}

func pending(n int, next string) string {
	if n == 0 {
		return "0"
	}
	return color.Warningf("%d", n) + color.Dim(" ("+next+")")
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
