package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bit-project/bit/internal/audit"
	"github.com/bit-project/bit/internal/repo"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/model"
)

var (
	auditLimit int
	auditType  string
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the audit trail",
	Long: `Show the hash-chained audit trail, newest last.

Examples:
  bit audit -n 20
  bit audit --type push_rejected`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := requireRepo()
		if err != nil {
			return err
		}
		records, err := audit.NewFileAppender(r.Path(repo.AuditFile)).Records()
		if err != nil {
			return err
		}
		records = filterAudit(records)
		return printOr(records, func() {
			if len(records) == 0 {
				printf("No audit records.\n")
				return
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, rec := range records {
				subject := string(rec.CommitID)
				if rec.ObjectID != "" {
					subject = string(rec.ObjectID)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					color.Dim(rec.Timestamp.Local().Format(time.DateTime)),
					color.Header(string(rec.EventType)),
					rec.UID,
					color.ID(model.ShortID(subject)),
				)
			}
			tw.Flush()
		})
	},
}

func filterAudit(records []model.AuditRecord) []model.AuditRecord {
	res := records[:0:0]
	for _, rec := range records {
		if auditType != "" && string(rec.EventType) != auditType {
			continue
		}
		res = append(res, rec)
	}
	if auditLimit > 0 && len(res) > auditLimit {
		res = res[len(res)-auditLimit:]
	}
	return res
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 0, "show only the last N records")
	auditCmd.Flags().StringVar(&auditType, "type", "", "filter by event type")
	rootCmd.AddCommand(auditCmd)
}
