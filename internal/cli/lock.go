package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/bit-project/bit/internal/lock"
	"github.com/bit-project/bit/internal/repo"
	"github.com/bit-project/bit/pkg/color"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect the repository ownership lease",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which process owns the repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := requireRepo()
		if err != nil {
			return err
		}
		rec, err := lock.NewManager(r.Path(repo.LockFile), lock.DefaultTTL).Status()
		if err != nil {
			return err
		}
		state := "free"
		if rec != nil {
			state = "held"
			if rec.IsExpired(time.Now()) {
				state = "expired"
			}
		}
		return printOr(map[string]any{"state": state, "lock": rec}, func() {
			switch state {
			case "free":
				printf("Lock: %s\n", color.Success(state))
				return
			case "expired":
				printf("Lock: %s (the next open takes it over)\n", color.Warning(state))
			default:
				printf("Lock: %s\n", color.Error(state))
			}
			printf("  Holder:   %s pid %d\n", rec.Hostname, rec.PID)
			if rec.Purpose != "" {
				printf("  Purpose:  %s\n", rec.Purpose)
			}
			printf("  Acquired: %s\n", rec.AcquiredAt.Format(time.RFC3339))
			printf("  Expires:  %s\n", rec.ExpiresAt.Format(time.RFC3339))
		})
	},
}

func init() {
	lockCmd.AddCommand(lockStatusCmd)
	rootCmd.AddCommand(lockCmd)
}
