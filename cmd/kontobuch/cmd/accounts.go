package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the chart of accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		uow, err := app.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer uow.Rollback()

		accounts, err := uow.Accounts().ListByUser(ctx, app.cfg.UserID)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			fmt.Println("No accounts yet. Run 'kontobuch sync' with a statement file first.")
			return nil
		}
		for _, account := range accounts {
			state := ""
			if !account.IsActive {
				state = "  (inactive)"
			}
			iban := ""
			if account.IBAN != "" {
				iban = "  " + account.IBAN
			}
			indent := strings.Repeat("  ", account.Depth-1)
			fmt.Printf("%-6s %s%s  [%s]%s%s\n",
				account.AccountNumber, indent, account.Name, account.AccountType, iban, state)
		}
		return nil
	},
}

var accountsRenameCmd = &cobra.Command{
	Use:   "rename <iban> <new-name>",
	Short: "Rename the account linked to a bank IBAN",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.accounts.RenameBankAccount(ctx, app.cfg.UserID, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Renamed account for %s to %q.\n", args[0], args[1])
		return nil
	},
}

func init() {
	accountsCmd.AddCommand(accountsRenameCmd)
}
