package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maltewinckler/kontobuch/internal/domain"
	"github.com/maltewinckler/kontobuch/internal/importer"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <statement.json>...",
	Short: "Compare bank-reported balances against the ledger",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		app, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		var banks []domain.BankAccount
		for _, path := range args {
			bank, _, err := importer.LoadStatementFile(path)
			if err != nil {
				return err
			}
			banks = append(banks, bank)
		}

		rows, err := app.reconcile.Compare(ctx, app.cfg.UserID, banks)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("Nothing to reconcile: no mapped accounts with a reported balance.")
			return nil
		}

		mismatches := 0
		for _, row := range rows {
			mark := "ok"
			if !row.Matched {
				mark = "MISMATCH"
				mismatches++
			}
			fmt.Printf("%-32s bank %14s  ledger %14s  diff %12s  %s\n",
				row.AccountName, row.BankBalance.String(), row.LedgerBalance.String(),
				row.Difference.String(), mark)
		}
		if mismatches > 0 {
			return fmt.Errorf("%d account(s) do not reconcile", mismatches)
		}
		return nil
	},
}
