package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/bit-project/bit/internal/books"
	"github.com/bit-project/bit/pkg/bit"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/model"
)

var (
	noteSetFlags struct {
		partner, description, idate, cdate, ddate, net, vat, gross string
	}
	noteTxComment string
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Manage invoices and receipts",
}

var noteAddCmd = &cobra.Command{
	Use:   "add <code>",
	Short: "Record a new note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			id, err := c.AddNote(args[0])
			if err != nil {
				return err
			}
			return printOr(map[string]any{"id": id, "code": args[0]}, func() {
				printf("Added note %s %s\n", color.Success(args[0]), color.Dim(string(id)))
			})
		})
	},
}

var noteSetCmd = &cobra.Command{
	Use:   "set <code|id>",
	Short: "Set note fields",
	Long: `Set one or more note fields. Dates are YYYY-MM-DD, amounts are decimals.

Examples:
  bit note set INV-7 --partner acme --idate 2024-03-01
  bit note set INV-7 --net 100 --vat 27 --gross 127`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := noteInput(cmd)
		if err != nil {
			return err
		}
		return withClient(func(c *bit.Client) error {
			if err := c.SetNote(args[0], in); err != nil {
				return notFound(c, args[0], err)
			}
			return printOr(map[string]any{"ref": args[0]}, func() {
				printf("Updated note %s\n", color.ID(args[0]))
			})
		})
	},
}

func noteInput(cmd *cobra.Command) (bit.NoteInput, error) {
	var in bit.NoteInput
	f := noteSetFlags
	changed := cmd.Flags().Changed

	if changed("partner") {
		in.Partner = f.partner
	}
	if changed("description") {
		d := f.description
		in.Description = &d
	}
	for _, date := range []struct {
		flag string
		val  string
		dst  **books.Date
	}{
		{"idate", f.idate, &in.IssueDate},
		{"cdate", f.cdate, &in.CompletionDate},
		{"ddate", f.ddate, &in.DueDate},
	} {
		if !changed(date.flag) {
			continue
		}
		d, err := books.ParseDate(date.val)
		if err != nil {
			return in, err
		}
		*date.dst = &d
	}
	for _, amount := range []struct {
		flag string
		val  string
		dst  **decimal.Decimal
	}{
		{"net", f.net, &in.Net},
		{"vat", f.vat, &in.VAT},
		{"gross", f.gross, &in.Gross},
	} {
		if !changed(amount.flag) {
			continue
		}
		d, err := decimal.NewFromString(amount.val)
		if err != nil {
			return in, fmt.Errorf("invalid --%s %q: %w", amount.flag, amount.val, err)
		}
		*amount.dst = &d
	}
	return in, nil
}

var noteUnsetCmd = &cobra.Command{
	Use:       "unset <code|id> <field>...",
	Short:     "Clear note fields",
	Long:      "Clear note fields: partner, description, idate, cdate, ddate, net, vat, gross.",
	Args:      cobra.MinimumNArgs(2),
	ValidArgs: []string{"partner", "description", "idate", "cdate", "ddate", "net", "vat", "gross"},
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := make([]books.NoteField, 0, len(args)-1)
		for _, a := range args[1:] {
			f, err := books.ParseNoteField(a)
			if err != nil {
				return err
			}
			fields = append(fields, f)
		}
		return withClient(func(c *bit.Client) error {
			if err := c.UnsetNote(args[0], fields...); err != nil {
				return notFound(c, args[0], err)
			}
			return printOr(map[string]any{"ref": args[0], "unset": fields}, func() {
				printf("Cleared %d field(s) of note %s\n", len(fields), color.ID(args[0]))
			})
		})
	},
}

var noteTxCmd = &cobra.Command{
	Use:   "tx <code|id> <debit-account> <credit-account> <amount>",
	Short: "Book a transaction on a note",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[3])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[3], err)
		}
		return withClient(func(c *bit.Client) error {
			if err := c.AddTransaction(args[0], args[1], args[2], amount, noteTxComment); err != nil {
				return notFound(c, args[0], err)
			}
			return printOr(map[string]any{"ref": args[0], "debit": args[1], "credit": args[2], "amount": amount}, func() {
				printf("Booked %s on note %s: %s -> %s\n", color.Success(amount.String()), color.ID(args[0]), args[2], args[1])
			})
		})
	},
}

var noteShowCmd = &cobra.Command{
	Use:   "show <code|id>",
	Short: "Show one note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			n, err := c.Note(args[0])
			if err != nil {
				return notFound(c, args[0], err)
			}
			return printOr(n, func() { printNote(c, n) })
		})
	},
}

func printNote(c *bit.Client, n bit.NoteEntry) {
	opt := func(s string, ok bool) string {
		if !ok {
			return color.Dim("-")
		}
		return s
	}
	partner := color.Dim("-")
	if n.Partner != nil {
		partner = string(*n.Partner)
		if _, p, err := c.Books().Partner(partner); err == nil {
			partner = p.Code + " " + color.Dim(p.Name)
		}
	}
	date := func(d *books.Date) string {
		if d == nil {
			return color.Dim("-")
		}
		return d.String()
	}
	amount := func(d *decimal.Decimal) string {
		if d == nil {
			return color.Dim("-")
		}
		return d.StringFixed(2)
	}

	printf("%s %s\n", color.Header("Note"), color.ID(n.Code))
	printf("  ID:              %s\n", color.Dim(string(n.ID)))
	printf("  Partner:         %s\n", partner)
	printf("  Description:     %s\n", opt(deref(n.Description), n.Description != nil))
	printf("  Issue date:      %s\n", date(n.IssueDate))
	printf("  Completion date: %s\n", date(n.CompletionDate))
	printf("  Due date:        %s\n", date(n.DueDate))
	printf("  Net:             %s\n", amount(n.Net))
	printf("  VAT:             %s\n", amount(n.VAT))
	printf("  Gross:           %s\n", amount(n.Gross))
	if !n.Balanced() {
		printf("  %s\n", color.Warning("net + vat does not equal gross"))
	}
	if len(n.Transactions) == 0 {
		return
	}
	printf("\n%s\n", color.Header("Transactions"))
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for i, t := range n.Transactions {
		debit, credit := accountCode(c, t.Debit), accountCode(c, t.Credit)
		fmt.Fprintf(tw, "  %d\t%s\t%s -> %s\t%s\n", i+1, t.Amount.StringFixed(2), credit, debit, color.Dim(t.Comment))
	}
	tw.Flush()
	printf("  Booked: %s\n", n.Booked().StringFixed(2))
}

func accountCode(c *bit.Client, id model.ObjectID) string {
	if _, a, err := c.Books().Account(string(id)); err == nil {
		return a.Code
	}
	return model.ShortID(id)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *bit.Client) error {
			notes := c.Notes()
			return printOr(notes, func() {
				if len(notes) == 0 {
					printf("No notes.\n")
					return
				}
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", color.Header("CODE"), color.Header("ISSUED"), color.Header("GROSS"), color.Header("BOOKED"))
				for _, n := range notes {
					issued, gross := "-", "-"
					if n.IssueDate != nil {
						issued = n.IssueDate.String()
					}
					if n.Gross != nil {
						gross = n.Gross.StringFixed(2)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", n.Code, issued, gross, n.Booked().StringFixed(2))
				}
				tw.Flush()
			})
		})
	},
}

func init() {
	f := noteSetCmd.Flags()
	f.StringVar(&noteSetFlags.partner, "partner", "", "partner code or id")
	f.StringVar(&noteSetFlags.description, "description", "", "free text")
	f.StringVar(&noteSetFlags.idate, "idate", "", "issue date")
	f.StringVar(&noteSetFlags.cdate, "cdate", "", "completion date")
	f.StringVar(&noteSetFlags.ddate, "ddate", "", "due date")
	f.StringVar(&noteSetFlags.net, "net", "", "net amount")
	f.StringVar(&noteSetFlags.vat, "vat", "", "VAT amount")
	f.StringVar(&noteSetFlags.gross, "gross", "", "gross amount")
	noteTxCmd.Flags().StringVarP(&noteTxComment, "comment", "m", "", "transaction comment")

	noteCmd.AddCommand(noteAddCmd, noteSetCmd, noteUnsetCmd, noteTxCmd, noteShowCmd, noteListCmd)
	rootCmd.AddCommand(noteCmd)
}
