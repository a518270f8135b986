package cli

import (
	"github.com/spf13/cobra"

	"github.com/bit-project/bit/internal/doctor"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/errclass"
)

var (
	doctorStrict bool
	doctorRepair []string
	doctorFix    bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check repository health",
	Long: `Check the .bit layout without opening the repository: format version,
documents against repo details, commit cursors, the ownership lease and
leftover temp files. Use --strict to also walk the audit hash chain.

Repairs:
  clean_tmp              remove temp files left by interrupted writes
  realign_index          point the commit index at the last entry of each log
  drop_orphan_documents  delete documents that no record refers to
  drop_index_cache       delete index.db so projections are replayed on open
  break_expired_lock     remove an expired or unreadable ownership lease

Use --repair <action> (repeatable) or --fix to apply every suggested repair.
Stop any server first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := requireRepo()
		if err != nil {
			return err
		}
		doc := doctor.NewDoctor(r)
		result, err := doc.Check(doctorStrict)
		if err != nil {
			return err
		}

		actions := doctorRepair
		if doctorFix {
			seen := map[string]bool{}
			for _, f := range result.Findings {
				if f.Repair != "" && !seen[f.Repair] {
					seen[f.Repair] = true
					actions = append(actions, f.Repair)
				}
			}
		}
		var repairs []doctor.RepairResult
		if len(actions) > 0 {
			if repairs, err = doc.Repair(actions); err != nil {
				return err
			}
			if result, err = doc.Check(doctorStrict); err != nil {
				return err
			}
		}

		if err := printOr(map[string]any{"result": result, "repairs": repairs}, func() {
			for _, rep := range repairs {
				mark := color.Success("ok")
				if !rep.Success {
					mark = color.Error("failed")
				}
				printf("repair %s: %s (%s)\n", rep.Action, mark, rep.Message)
			}
			if len(result.Findings) == 0 {
				printf("%s\n", color.Success("Repository is healthy."))
				return
			}
			printf("Findings (%d):\n", len(result.Findings))
			for _, f := range result.Findings {
				line := "  [" + severity(f.Severity) + "] " + f.Category + ": " + f.Description
				if f.Repair != "" {
					line += color.Dim(" (--repair " + f.Repair + ")")
				}
				printf("%s\n", line)
			}
		}); err != nil {
			return err
		}
		if !result.Healthy {
			return errclass.ErrVerifyFailed.WithMessage("repository is unhealthy")
		}
		return nil
	},
}

func severity(s string) string {
	switch s {
	case "critical", "error":
		return color.Error(s)
	case "warning":
		return color.Warning(s)
	}
	return color.Dim(s)
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "also verify the audit hash chain")
	doctorCmd.Flags().StringArrayVar(&doctorRepair, "repair", nil, "apply a repair action (repeatable)")
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "apply every suggested repair")
	rootCmd.AddCommand(doctorCmd)
}
