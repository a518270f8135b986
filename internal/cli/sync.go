package cli

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bit-project/bit/pkg/bit"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/model"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch and apply the server's new commits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			n, err := c.Pull(cmd.Context())
			if err != nil {
				return err
			}
			head := c.Repository().Index().LatestRemoteCommitID
			return printOr(map[string]any{"pulled": n, "head": head}, func() {
				if n == 0 {
					printf("Already up to date.\n")
					return
				}
				printf("Pulled %s commit(s), head %s\n", color.Success(strconv.Itoa(n)), color.ID(model.ShortID(model.OptString(head))))
				reportConflicts(c)
			})
		})
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Send local commits to the server",
	Long: `Send every local commit to the server, oldest first.

Push pulls first, so commits always extend the current remote head. A
commit that conflicts with a concurrent edit is rejected and kept locally;
resolve it with bit rebase and push again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			n, err := c.Push(cmd.Context())
			if err != nil {
				if n > 0 && !jsonOutput {
					printf("Pushed %d commit(s) before the failure.\n", n)
				}
				return err
			}
			return printOr(map[string]any{"pushed": n}, func() {
				if n == 0 {
					printf("Nothing to push.\n")
					return
				}
				printf("Pushed %s commit(s)\n", color.Success(strconv.Itoa(n)))
			})
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the server until interrupted",
	Long: `Serve pull and push requests on the bind address recorded at init.

Endpoints:
  GET  /v1/health
  GET  /v1/pull?after=<commit>   (websocket)
  POST /v1/push
  GET  /metrics                  (when metrics.enabled)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		opts := bit.OpenOptions{Ready: func(addr net.Addr) {
			if jsonOutput {
				outputJSON(map[string]any{"listening": addr.String()})
				return
			}
			printf("Serving on %s (Ctrl+C to stop)\n", color.Success(addr.String()))
		}}
		return withClientOptions(opts, func(c *bit.Client) error {
			return c.Serve(ctx)
		})
	},
}

func reportConflicts(c *bit.Client) {
	status, err := c.Status()
	if err != nil || len(status.Conflicts) == 0 {
		return
	}
	printf("%s %d record(s) in conflict. Run %s.\n",
		color.Warning("warning:"), len(status.Conflicts), code("bit status"))
}

func init() {
	rootCmd.AddCommand(pullCmd, pushCmd, serveCmd)
}
