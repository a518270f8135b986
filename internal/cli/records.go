package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bit-project/bit/pkg/bit"
	"github.com/bit-project/bit/pkg/color"
	"github.com/bit-project/bit/pkg/model"
)

var listAll bool

// recordKind wires the add/rename/remove/restore/list verbs shared by
// accounts and partners.
type recordKind struct {
	name    string
	add     func(c *bit.Client, code, name string) (model.ObjectID, error)
	rename  func(c *bit.Client, ref, name string) error
	remove  func(c *bit.Client, ref string) error
	restore func(c *bit.Client, ref string) error
	list    func(c *bit.Client, all bool) []listRow
}

type listRow struct {
	ID      model.ObjectID `json:"id"`
	Code    string         `json:"code"`
	Name    string         `json:"name"`
	Removed bool           `json:"removed"`
}

var accountKind = recordKind{
	name:    "account",
	add:     (*bit.Client).AddAccount,
	rename:  (*bit.Client).RenameAccount,
	remove:  (*bit.Client).RemoveAccount,
	restore: (*bit.Client).RestoreAccount,
	list: func(c *bit.Client, all bool) []listRow {
		var rows []listRow
		for _, a := range c.Accounts(all) {
			rows = append(rows, listRow{ID: a.ID, Code: a.Code, Name: a.Name, Removed: a.Removed})
		}
		return rows
	},
}

var partnerKind = recordKind{
	name:    "partner",
	add:     (*bit.Client).AddPartner,
	rename:  (*bit.Client).RenamePartner,
	remove:  (*bit.Client).RemovePartner,
	restore: (*bit.Client).RestorePartner,
	list: func(c *bit.Client, all bool) []listRow {
		var rows []listRow
		for _, p := range c.Partners(all) {
			rows = append(rows, listRow{ID: p.ID, Code: p.Code, Name: p.Name, Removed: p.Removed})
		}
		return rows
	},
}

func (k recordKind) command(short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   k.name,
		Short: short,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <code> <name>",
		Short: "Record a new " + k.name,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *bit.Client) error {
				id, err := k.add(c, args[0], args[1])
				if err != nil {
					return err
				}
				return printOr(map[string]any{"id": id, "code": args[0], "name": args[1]}, func() {
					printf("Added %s %s %s\n", k.name, color.Success(args[0]), color.Dim(string(id)))
				})
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rename <code|id> <name>",
		Short: "Rename a " + k.name,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *bit.Client) error {
				if err := k.rename(c, args[0], args[1]); err != nil {
					return notFound(c, args[0], err)
				}
				return printOr(map[string]any{"ref": args[0], "name": args[1]}, func() {
					printf("Renamed %s %s to %s\n", k.name, color.ID(args[0]), args[1])
				})
			})
		},
	})
	for _, verb := range []struct {
		use, past string
		fn        func(c *bit.Client, ref string) error
	}{
		{"remove", "Removed", k.remove},
		{"restore", "Restored", k.restore},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   verb.use + " <code|id>",
			Short: fmt.Sprintf("%s a %s", verb.use, k.name),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(func(c *bit.Client) error {
					if err := verb.fn(c, args[0]); err != nil {
						return notFound(c, args[0], err)
					}
					return printOr(map[string]any{"ref": args[0], "action": verb.use}, func() {
						printf("%s %s %s\n", verb.past, k.name, color.ID(args[0]))
					})
				})
			},
		})
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List " + k.name + "s",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *bit.Client) error {
				rows := k.list(c, listAll)
				return printOr(rows, func() {
					if len(rows) == 0 {
						printf("No %ss.\n", k.name)
						return
					}
					tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintf(tw, "%s\t%s\t%s\n", color.Header("CODE"), color.Header("NAME"), color.Header("ID"))
					for _, r := range rows {
						name := r.Name
						if r.Removed {
							name = color.Dim(name + " (removed)")
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Code, name, color.Dim(model.ShortID(r.ID)))
					}
					tw.Flush()
				})
			})
		},
	}
	list.Flags().BoolVarP(&listAll, "all", "a", false, "include removed records")
	cmd.AddCommand(list)
	return cmd
}

func init() {
	rootCmd.AddCommand(accountKind.command("Manage ledger accounts"))
	rootCmd.AddCommand(partnerKind.command("Manage partners"))
}
