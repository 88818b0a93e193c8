package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mohsinsiddi/w3vault/internal/ui"
)

var (
	accountNote  string
	accountForce bool
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"accounts"},
	Short:   "Manage the address book",
	Long: `Manage named addresses. Any command taking an address also accepts
an account name from this book.`,
}

var accountAddCmd = &cobra.Command{
	Use:   "add <name> <address>",
	Short: "Name an address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		af, err := cfg.LoadAccounts()
		if err != nil {
			return err
		}
		if err := af.Add(args[0], args[1], accountNote); err != nil {
			return err
		}
		if err := cfg.SaveAccounts(af); err != nil {
			return err
		}
		a, _ := af.Find(args[0])
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Account %q added: %s", a.Name, ui.Addr(a.Address))))
		fmt.Fprintln(out, ui.Hint(fmt.Sprintf("Use it as a royalty receiver with: w3vault config set-royalty <collection> %s 500", a.Name)))
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List named addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		af, err := cfg.LoadAccounts()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(af.Accounts) == 0 {
			fmt.Fprintln(out, ui.Info("No accounts yet."))
			fmt.Fprintln(out, ui.Hint("Add one with: w3vault account add treasury 0xYourAddress"))
			return nil
		}

		t := ui.NewTable([]ui.Column{
			{Title: "Name", Width: 16},
			{Title: "Address", Width: 44},
			{Title: "Note", Width: 24},
			{Title: "Added", Width: 10},
		})
		for _, a := range af.Accounts {
			added := a.CreatedAt
			if len(added) > 10 {
				added = added[:10]
			}
			t.AddRow(ui.Row{ui.Val(a.Name), ui.Addr(a.Address), a.Note, ui.Meta(added)})
		}
		fmt.Fprintln(out, t.Render())
		return nil
	},
}

var accountRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Forget a named address",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		af, err := cfg.LoadAccounts()
		if err != nil {
			return err
		}
		name := args[0]
		if _, ok := af.Find(name); !ok {
			return fmt.Errorf("account %q not found", name)
		}
		out := cmd.OutOrStdout()
		if !accountForce && !ui.ConfirmDanger(cmd.InOrStdin(), out, fmt.Sprintf("Remove account %q?", name)) {
			fmt.Fprintln(out, ui.Meta("Aborted."))
			return nil
		}
		if err := af.Remove(name); err != nil {
			return err
		}
		if err := cfg.SaveAccounts(af); err != nil {
			return err
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Account %q removed", name)))
		return nil
	},
}

func init() {
	accountAddCmd.Flags().StringVar(&accountNote, "note", "", "free-form note shown in the list")
	accountRemoveCmd.Flags().BoolVarP(&accountForce, "yes", "y", false, "skip the confirmation prompt")
	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountRemoveCmd)
}
