package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var balancesAsOf string

var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Show per-account balances and verify the trial balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		var asOf *time.Time
		if balancesAsOf != "" {
			d, err := time.Parse("2006-01-02", balancesAsOf)
			if err != nil {
				return fmt.Errorf("invalid --as-of date %q: %w", balancesAsOf, err)
			}
			asOf = &d
		}

		uow, err := app.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer uow.Rollback()

		accounts, err := uow.Accounts().ListByUser(ctx, app.cfg.UserID)
		if err != nil {
			return err
		}
		transactions, err := uow.Transactions().ListByUser(ctx, app.cfg.UserID)
		if err != nil {
			return err
		}

		balances, err := app.balance.TrialBalance(accounts, transactions, asOf)
		if err != nil {
			return err
		}
		for _, account := range accounts {
			balance, ok := balances[account.ID]
			if !ok {
				continue
			}
			fmt.Printf("%-6s %-32s %14s\n", account.AccountNumber, account.Name, balance.String())
		}

		ok, err := app.balance.VerifyTrialBalance(accounts, balances)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("trial balance does not sum to zero")
		}
		fmt.Println("Trial balance verified.")
		return nil
	},
}

func init() {
	balancesCmd.Flags().StringVar(&balancesAsOf, "as-of", "", "balance cutoff date (YYYY-MM-DD, inclusive)")
}
